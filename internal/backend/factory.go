package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/events"
	"fintrack/internal/kafka"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	sheetsmem "fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Store: repo, Cleanup: repo.Close}, nil

	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized memory backend")
		return &BackendResult{Store: memory.New()}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// CreateEvents builds the configured transport. With consume set, the
// result also carries a consumer bound to the same queue or topic.
func (f *DefaultFactory) CreateEvents(ctx context.Context, config Config, consume bool) (*EventsResult, error) {
	switch config.Events {
	case NoEvents, "":
		f.logger.InfoContext(ctx, "Events disabled")
		return &EventsResult{Publisher: events.NopPublisher{}}, nil

	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized AMQP client",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		res := &EventsResult{Publisher: client, Cleanup: client.Close}
		if consume {
			res.Consumer = client
		}
		return res, nil

	case KafkaEvents:
		publisher := kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic)
		res := &EventsResult{Publisher: publisher, Cleanup: publisher.Close}
		if consume {
			consumer := kafka.NewConsumer(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID)
			res.Consumer = consumer
			res.Cleanup = func() error {
				return errors.Join(publisher.Close(), consumer.Close())
			}
		}
		f.logger.InfoContext(ctx, "Initialized Kafka client",
			"brokers", config.KafkaBrokers,
			"topic", config.KafkaTopic,
			"consumer", consume)
		return res, nil

	default:
		return nil, fmt.Errorf("unsupported events type: %s", config.Events)
	}
}

// CreateExporter returns the Google Sheets exporter when a spreadsheet is
// configured and an in-memory one otherwise.
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (sheets.TransactionExporter, error) {
	if !config.ExportEnabled() {
		f.logger.WarnContext(ctx, "No spreadsheet configured, exported rows are kept in memory")
		return sheetsmem.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets exporter", "sheet", config.GoogleSheetName)
	return client, nil
}
