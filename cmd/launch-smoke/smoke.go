package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"whatsapp-campaign-launcher/internal/domain"
	"whatsapp-campaign-launcher/internal/middleware"

	"github.com/google/uuid"
)

type smokeOptions struct {
	BaseURL    string
	TenantID   uuid.UUID
	OperatorID uuid.UUID
	ChannelID  uuid.UUID
	Template   string
	Language   string
	Rows       int
	BlankEvery int
	DelayMS    int
}

type smokeResult struct {
	Rows         int
	UploadTime   time.Duration
	StreamTime   time.Duration
	FirstEvent   time.Duration
	Events       int
	Done         *domain.DispatchEvent
	Errors       map[string]int
	OutOfOrderAt int
}

// syntheticCSV builds rows of phone,name,code. Every blankEvery-th row
// has an empty phone so the skip path is exercised too.
func syntheticCSV(rows, blankEvery int) []byte {
	var b bytes.Buffer
	b.WriteString("phone,name,code\n")
	for i := 1; i <= rows; i++ {
		phone := fmt.Sprintf("+6681234%04d", i%10000)
		if blankEvery > 0 && i%blankEvery == 0 {
			phone = ""
		}
		fmt.Fprintf(&b, "%s,Smoke %d,CODE%d\n", phone, i, i)
	}
	return b.Bytes()
}

type smokeClient struct {
	http *http.Client
	opts smokeOptions
}

func (c *smokeClient) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.opts.BaseURL, "/")+"/api/campaign-launcher"+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(middleware.HeaderTenantID, c.opts.TenantID.String())
	req.Header.Set(middleware.HeaderOperatorID, c.opts.OperatorID.String())
	return req, nil
}

func (c *smokeClient) upload(ctx context.Context, csv []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "smoke.csv")
	if err != nil {
		return err
	}
	if _, err := fw.Write(csv); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload: HTTP %d: %s", resp.StatusCode, body)
	}
	return nil
}

func (c *smokeClient) validate(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"phone_column": "phone", "name_column": "name"})

	req, err := c.newRequest(ctx, http.MethodPost, "/validate", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("validate: HTTP %d: %s", resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if !out.Valid {
		return fmt.Errorf("validate: %s", strings.Join(out.Errors, "; "))
	}
	return nil
}

func (c *smokeClient) launch(ctx context.Context) (*http.Response, error) {
	body, _ := json.Marshal(map[string]any{
		"channel_id":        c.opts.ChannelID.String(),
		"phone_column":      "phone",
		"name_column":       "name",
		"variable_mappings": []domain.VariableMapping{{Column: "name", VariableKey: "1"}, {Column: "code", VariableKey: "2"}},
		"delay_ms":          c.opts.DelayMS,
		"template_name":     c.opts.Template,
		"template_language": c.opts.Language,
	})

	req, err := c.newRequest(ctx, http.MethodPost, "/launch", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("launch: HTTP %d: %s", resp.StatusCode, raw)
	}
	return resp, nil
}

func runSmoke(ctx context.Context, client *http.Client, opts smokeOptions) (*smokeResult, error) {
	c := &smokeClient{http: client, opts: opts}
	res := &smokeResult{Rows: opts.Rows, Errors: map[string]int{}, OutOfOrderAt: -1}

	start := time.Now()
	if err := c.upload(ctx, syntheticCSV(opts.Rows, opts.BlankEvery)); err != nil {
		return nil, err
	}
	res.UploadTime = time.Since(start)

	if err := c.validate(ctx); err != nil {
		return nil, err
	}

	start = time.Now()
	resp, err := c.launch(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	err = readStream(resp.Body, func(ev domain.DispatchEvent) {
		if res.Events == 0 {
			res.FirstEvent = time.Since(start)
		}
		if ev.Type == domain.EventDone {
			done := ev
			res.Done = &done
			return
		}
		if ev.Index != nil && *ev.Index != res.Events && res.OutOfOrderAt < 0 {
			res.OutOfOrderAt = res.Events
		}
		res.Events++
		if ev.Status == domain.OutcomeError {
			res.Errors[ev.Detail]++
		}
	})
	res.StreamTime = time.Since(start)
	if err != nil {
		return res, err
	}
	if res.Done == nil {
		return res, fmt.Errorf("stream ended without a done event after %d rows", res.Events)
	}
	return res, nil
}

// readStream parses "data: {json}" frames until the body closes.
func readStream(r io.Reader, fn func(domain.DispatchEvent)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.DispatchEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		fn(ev)
	}
	return sc.Err()
}
