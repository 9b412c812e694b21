package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/question-bank/internal/fetcher"
	"github.com/sells-group/question-bank/internal/model"
)

// Format names a raw-record file encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
	FormatZIP   Format = "zip"
)

// ParseFormat validates a format name. "yml" and "ndjson" are accepted as
// aliases.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatJSON, FormatJSONL, FormatYAML, FormatCSV, FormatXLSX, FormatZIP:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "ndjson":
		return FormatJSONL, nil
	default:
		return "", eris.Errorf("ingest: unknown format %q", s)
	}
}

// FormatOf infers the format of location from its extension.
func FormatOf(location string) (Format, error) {
	ext := fetcher.Ext(location)
	if ext == "" {
		return "", eris.Errorf("ingest: cannot infer format of %s; pass one explicitly", location)
	}
	return ParseFormat(ext)
}

// ReadRecords decodes every raw record in r. ZIP archives need a file on
// disk and are handled by Load.
func ReadRecords(ctx context.Context, r io.Reader, format Format) ([]model.RawRecord, error) {
	switch format {
	case FormatJSON:
		return drain(fetcher.DecodeJSONArray[model.RawRecord](ctx, r))
	case FormatJSONL:
		return drain(fetcher.DecodeJSONLines[model.RawRecord](ctx, r))
	case FormatYAML:
		var records []model.RawRecord
		if err := yaml.NewDecoder(r).Decode(&records); err != nil && err != io.EOF {
			return nil, eris.Wrap(err, "ingest: decode yaml")
		}
		return records, nil
	case FormatCSV:
		return readCSV(ctx, r)
	case FormatXLSX:
		rows, err := fetcher.ReadXLSX(r, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read xlsx")
		}
		return recordsFromRows(rows)
	case FormatZIP:
		return nil, eris.New("ingest: zip archives must be read with Load")
	default:
		return nil, eris.Errorf("ingest: unknown format %q", format)
	}
}

func drain(ch <-chan model.RawRecord, errCh <-chan error) ([]model.RawRecord, error) {
	var records []model.RawRecord
	for rec := range ch {
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return records, eris.Wrap(err, "ingest: decode records")
	}
	return records, nil
}

func readCSV(ctx context.Context, r io.Reader) ([]model.RawRecord, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "ingest: stream csv")
	}
	return recordsFromRows(rows)
}

// Load reads the raw records at location, which may be a local path or an
// http(s)/ftp URL. An empty format is inferred from the extension. ZIP
// archives are extracted and each member read by its own extension.
func Load(ctx context.Context, sources *fetcher.Sources, location string, format Format) ([]model.RawRecord, error) {
	if format == "" {
		f, err := FormatOf(location)
		if err != nil {
			return nil, err
		}
		format = f
	}

	if format == FormatZIP {
		return loadZIP(ctx, sources, location)
	}

	rc, err := sources.Open(ctx, location)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open source")
	}
	defer rc.Close() //nolint:errcheck

	return ReadRecords(ctx, rc, format)
}

func loadZIP(ctx context.Context, sources *fetcher.Sources, location string) ([]model.RawRecord, error) {
	tmp, err := os.MkdirTemp("", "qbank-ingest-*")
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	archive, err := sources.Fetch(ctx, location, tmp)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: fetch archive")
	}

	files, err := fetcher.ExtractZIP(archive, filepath.Join(tmp, "extracted"))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: extract archive")
	}
	sort.Strings(files)

	var records []model.RawRecord
	for _, path := range files {
		format, err := FormatOf(path)
		if err != nil || format == FormatZIP {
			zap.L().Warn("ingest: skipping archive member", zap.String("file", filepath.Base(path)))
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			return records, eris.Wrapf(err, "ingest: open %s", filepath.Base(path))
		}
		recs, err := ReadRecords(ctx, f, format)
		_ = f.Close()
		if err != nil {
			return records, eris.Wrapf(err, "ingest: read %s", filepath.Base(path))
		}
		records = append(records, recs...)
	}
	return records, nil
}
