package domain

import "errors"

// Domain errors
var (
	ErrNoFile               = errors.New("no file provided")
	ErrEmptyDataset         = errors.New("CSV is empty")
	ErrInvalidCSV           = errors.New("invalid CSV format")
	ErrInvalidLaunch        = errors.New("invalid launch request")
	ErrStreamClosed         = errors.New("event stream closed")
	ErrNoStagedImport       = errors.New("no CSV data found")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrTemplateUnresolvable = errors.New("Template not found or invalid") //nolint:stylecheck
	ErrLaunchInProgress     = errors.New("a launch is already running for this upload")
	ErrMessageNotFound      = errors.New("message not found")
)
