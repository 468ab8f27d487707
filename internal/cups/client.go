// Package cups talks to the print server over IPP.
package cups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/phin1x/go-ipp"

	"github.com/orrn/printdesk/internal/core"
)

const (
	mimeTypePDF = "application/pdf"

	attrPrinterName       = "printer-name"
	attrPrinterState      = "printer-state"
	attrNumberUpSupported = "number-up-supported"
	attrCopiesSupported   = "copies-supported"
)

var (
	ErrNoPrinter = errors.New("no printer configured")
	// ErrPageRanges is returned for a page-ranges option. go-ipp cannot
	// encode rangeOfInteger values, so the document must already hold only
	// the pages to print.
	ErrPageRanges = errors.New("page-ranges cannot be sent over ipp")
)

// keywordOptions are missing from go-ipp's attribute table.
var keywordOptions = []string{
	core.OptionSides,
	core.OptionNumberUpLayout,
}

func init() {
	for _, name := range keywordOptions {
		if _, ok := ipp.AttributeTagMapping[name]; !ok {
			ipp.AttributeTagMapping[name] = ipp.TagKeyword
		}
	}
}

// integerOptions are sent as IPP integers or enums; everything else is a keyword.
var integerOptions = map[string]bool{
	core.OptionCopies:       true,
	core.OptionNumberUp:     true,
	core.OptionPrintQuality: true,
}

var printerStates = map[int]string{
	3: "idle",
	4: "processing",
	5: "stopped",
}

// ippClient is the part of the go-ipp CUPS client used here.
type ippClient interface {
	PrintJob(doc ipp.Document, printer string, jobAttributes map[string]interface{}) (int, error)
	CancelJob(jobID int, purge bool) error
	GetPrinterAttributes(printer string, attributes []string) (ipp.Attributes, error)
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	Printer  string
	Attempts uint
	Delay    time.Duration
}

// Client submits, cancels and describes jobs on one CUPS printer.
type Client struct {
	ipp      ippClient
	printer  string
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Printer == "" {
		return nil, ErrNoPrinter
	}
	if cfg.Port == 0 {
		cfg.Port = 631
	}
	c := ipp.NewCUPSClient(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.TLS)
	return newClient(c, cfg, logger), nil
}

func newClient(c ippClient, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	return &Client{
		ipp:      c,
		printer:  cfg.Printer,
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		logger:   logger.With("printer", cfg.Printer),
	}
}

// Submit sends the PDF at path with title as the job name and returns the
// CUPS job id. Submission is not retried: a duplicate job would print twice.
func (c *Client) Submit(ctx context.Context, path, title string, options map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	attrs, err := jobAttributes(options)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat document: %w", err)
	}

	id, err := c.ipp.PrintJob(ipp.Document{
		Document: f,
		Size:     int(info.Size()),
		Name:     title,
		MimeType: mimeTypePDF,
	}, c.printer, attrs)
	if err != nil {
		return "", fmt.Errorf("print job rejected: %w", err)
	}

	c.logger.Info("job submitted to cups", "title", title, "cups_job_id", id, "options", options)
	return strconv.Itoa(id), nil
}

// Cancel cancels the CUPS job, purging it from history when purge is set.
func (c *Client) Cancel(ctx context.Context, reference string, purge bool) error {
	id, err := strconv.Atoi(reference)
	if err != nil {
		return fmt.Errorf("invalid job reference %q: %w", reference, err)
	}
	return retry.Do(
		func() error {
			return c.ipp.CancelJob(id, purge)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
	)
}

// Capabilities queries the printer once, retrying transient failures.
func (c *Client) Capabilities(ctx context.Context) (core.Capabilities, error) {
	var attrs ipp.Attributes
	err := retry.Do(
		func() error {
			var err error
			attrs, err = c.ipp.GetPrinterAttributes(c.printer, []string{
				attrPrinterName, attrPrinterState, attrNumberUpSupported, attrCopiesSupported,
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("printer attribute query failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return core.Capabilities{}, fmt.Errorf("failed to get printer attributes: %w", err)
	}

	caps := core.Capabilities{Name: c.printer}
	if names := stringValues(attrs[attrPrinterName]); len(names) > 0 {
		caps.Name = names[0]
	}
	if states := intValues(attrs[attrPrinterState]); len(states) > 0 {
		caps.State = printerStates[states[0]]
	}
	caps.NumberUp = intValues(attrs[attrNumberUpSupported])
	if copies := intValues(attrs[attrCopiesSupported]); len(copies) > 0 {
		// copies-supported is a range; its upper bound comes last.
		caps.MaxCopies = copies[len(copies)-1]
	}
	return caps, nil
}

func jobAttributes(options map[string]string) (map[string]interface{}, error) {
	attrs := make(map[string]interface{}, len(options))
	for k, v := range options {
		if k == core.OptionPageRanges {
			return nil, ErrPageRanges
		}
		if !integerOptions[k] {
			attrs[k] = v
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", k, err)
		}
		attrs[k] = n
	}
	return attrs, nil
}

func intValues(attrs []ipp.Attribute) []int {
	var out []int
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case int:
			out = append(out, v)
		case int8:
			out = append(out, int(v))
		case int16:
			out = append(out, int(v))
		case int32:
			out = append(out, int(v))
		case []int:
			out = append(out, v...)
		default:
			out = append(out, rangeBounds(v)...)
		}
	}
	return out
}

// rangeBounds reads the Lower and Upper fields of a decoded rangeOfInteger.
func rangeBounds(v interface{}) []int {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return nil
	}
	var out []int
	for _, name := range []string{"Lower", "Upper"} {
		f := rv.FieldByName(name)
		if f.IsValid() && f.CanInt() {
			out = append(out, int(f.Int()))
		}
	}
	return out
}

func stringValues(attrs []ipp.Attribute) []string {
	var out []string
	for _, a := range attrs {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
