package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/sawpanic/fisr/internal/persistence"
)

// ErrNothingToArchive is returned for a day without trades
var ErrNothingToArchive = errors.New("no trades for day")

// Config selects where the end-of-day blotter goes
type Config struct {
	Dir         string   `yaml:"dir"`
	Compression string   `yaml:"compression"` // snappy, gzip or none
	S3          S3Config `yaml:"s3"`
}

// S3Config enables upload when Bucket is set
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// DefaultConfig writes snappy parquet under ./archive
func DefaultConfig() Config {
	return Config{Dir: "archive", Compression: "snappy", S3: S3Config{Prefix: "fisr/trades", Region: "us-east-1"}}
}

type tradeRecord struct {
	ID         int64   `parquet:"name=id, type=INT64"`
	Timestamp  int64   `parquet:"name=ts, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Ticker     string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side       string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Qty        float64 `parquet:"name=qty, type=DOUBLE"`
	Price      float64 `parquet:"name=price, type=DOUBLE"`
	TradeValue float64 `parquet:"name=trade_value, type=DOUBLE"`
	Status     string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type memFile struct {
	buffer *bytes.Buffer
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }

// Uploader is the subset of the S3 client used here
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Result describes one archived day
type Result struct {
	Day      string `json:"day"`
	Rows     int    `json:"rows"`
	Bytes    int    `json:"bytes"`
	Location string `json:"location"`
}

// Archiver writes a day's trade blotter to Parquet
type Archiver struct {
	cfg      Config
	trades   persistence.TradesRepo
	loc      *time.Location
	uploader Uploader
}

// New creates an archiver; an S3 client is built when a bucket is configured
func New(ctx context.Context, cfg Config, trades persistence.TradesRepo, loc *time.Location) (*Archiver, error) {
	var up Uploader
	if cfg.S3.Bucket != "" {
		opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3.Region)}
		if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
			))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		up = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			}
			o.UsePathStyle = cfg.S3.PathStyle
		})
	}
	return NewWithUploader(cfg, trades, loc, up), nil
}

// NewWithUploader creates an archiver with an explicit uploader; nil writes locally
func NewWithUploader(cfg Config, trades persistence.TradesRepo, loc *time.Location, up Uploader) *Archiver {
	if loc == nil {
		loc = time.Local
	}
	if cfg.Dir == "" {
		cfg.Dir = "archive"
	}
	return &Archiver{cfg: cfg, trades: trades, loc: loc, uploader: up}
}

// ArchiveDay encodes the trades of day and stores them under a date=YYYY-MM-DD partition
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (Result, error) {
	day = day.In(a.loc)
	res := Result{Day: day.Format(persistence.DayLayout)}

	trades, err := a.trades.ListTradesForDay(ctx, day)
	if err != nil {
		return res, fmt.Errorf("list trades for %s: %w", res.Day, err)
	}
	if len(trades) == 0 {
		return res, fmt.Errorf("%w %s", ErrNothingToArchive, res.Day)
	}

	data, err := a.encode(trades)
	if err != nil {
		return res, err
	}
	res.Rows = len(trades)
	res.Bytes = len(data)

	name := fmt.Sprintf("trades_%s.parquet", strings.ReplaceAll(res.Day, "-", ""))
	partition := "date=" + res.Day

	if a.uploader != nil {
		key := path.Join(a.cfg.S3.Prefix, partition, name)
		if err := a.upload(ctx, key, data); err != nil {
			return res, err
		}
		res.Location = fmt.Sprintf("s3://%s/%s", a.cfg.S3.Bucket, key)
	} else {
		dir := filepath.Join(a.cfg.Dir, partition)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return res, fmt.Errorf("create archive dir: %w", err)
		}
		file := filepath.Join(dir, name)
		if err := os.WriteFile(file, data, 0o644); err != nil {
			return res, fmt.Errorf("write archive: %w", err)
		}
		res.Location = file
	}

	log.Info().Str("day", res.Day).Int("rows", res.Rows).Int("bytes", res.Bytes).
		Str("location", res.Location).Msg("Trade blotter archived")
	return res, nil
}

func (a *Archiver) encode(trades []persistence.Trade) ([]byte, error) {
	mem := &memFile{buffer: &bytes.Buffer{}}
	pw, err := writer.NewParquetWriter(mem, new(tradeRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}

	switch strings.ToLower(a.cfg.Compression) {
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "none", "uncompressed":
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	default:
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	}

	for _, t := range trades {
		ts, err := t.Time(a.loc)
		if err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("trade %d timestamp: %w", t.ID, err)
		}
		rec := tradeRecord{
			ID:         t.ID,
			Timestamp:  ts.UnixMilli(),
			Ticker:     t.Ticker,
			Side:       t.Side,
			Qty:        t.Qty,
			Price:      t.Price,
			TradeValue: t.TradeValue,
			Status:     t.Status,
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mem.buffer.Bytes(), nil
}

func (a *Archiver) upload(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := a.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"compression":  a.cfg.Compression,
		},
	})
	if err != nil {
		return fmt.Errorf("upload trade archive: %w", err)
	}
	return nil
}
