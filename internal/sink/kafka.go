package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/segmentio/kafka-go"

	"statcan/internal/table"
)

// txProducer abstracts the transactional part of *ck.Producer for testability.
type txProducer interface {
	BeginTransaction() error
	Produce(msg *ck.Message, deliveryChan chan ck.Event) error
	Flush(timeoutMs int) int
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	Close()
}

// KafkaUploader produces every row of a table to <prefix>.<dataset> inside
// one transaction. Consumers reading with isolation.level=read_committed
// see an upload entirely or not at all. An overwrite starts with a reset
// marker carrying no value.
type KafkaUploader struct {
	producer    txProducer
	topicPrefix string
}

// NewKafkaUploader creates an idempotent transactional producer.
func NewKafkaUploader(ctx context.Context, bootstrap, topicPrefix, txID string) (*KafkaUploader, error) {
	p, err := ck.NewProducer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"enable.idempotence": true,
		"acks":               "all",
		"transactional.id":   txID,
	})
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	if err := p.InitTransactions(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("init tx: %w", err)
	}
	return &KafkaUploader{producer: p, topicPrefix: topicPrefix}, nil
}

// NewKafkaUploaderWith is only for tests to inject a fake producer.
func NewKafkaUploaderWith(p txProducer, topicPrefix string) *KafkaUploader {
	return &KafkaUploader{producer: p, topicPrefix: topicPrefix}
}

// Topic returns the topic rows of datasetID are written to.
func (k *KafkaUploader) Topic(datasetID string) string {
	if k.topicPrefix == "" {
		return datasetID
	}
	return k.topicPrefix + "." + datasetID
}

func (k *KafkaUploader) Upload(ctx context.Context, t *table.Table, datasetID string, mode Mode) (Receipt, error) {
	if err := checkUpload(datasetID, mode); err != nil {
		return Receipt{}, err
	}
	topic := k.Topic(datasetID)
	uploadID := newUploadID()
	headers := func(kind string) []ck.Header {
		return []ck.Header{
			{Key: "upload_id", Value: []byte(uploadID)},
			{Key: "mode", Value: []byte(mode)},
			{Key: "kind", Value: []byte(kind)},
		}
	}
	produce := func(key, value []byte, kind string) error {
		return k.producer.Produce(&ck.Message{
			TopicPartition: ck.TopicPartition{Topic: &topic, Partition: ck.PartitionAny},
			Key:            key,
			Value:          value,
			Headers:        headers(kind),
		}, nil)
	}

	if err := k.producer.BeginTransaction(); err != nil {
		return Receipt{}, fmt.Errorf("begin tx: %w", err)
	}
	abort := func(err error) (Receipt, error) {
		_ = k.producer.AbortTransaction(ctx)
		return Receipt{}, err
	}
	if mode == Overwrite {
		if err := produce([]byte(datasetID), nil, "reset"); err != nil {
			return abort(fmt.Errorf("produce reset: %w", err))
		}
	}
	for i := 0; i < t.Len(); i++ {
		b, err := t.EncodeRow(i)
		if err != nil {
			return abort(err)
		}
		if err := produce([]byte(datasetID+"/"+strconv.Itoa(i)), b, "row"); err != nil {
			return abort(fmt.Errorf("produce row %d: %w", i, err))
		}
	}
	if err := k.producer.CommitTransaction(ctx); err != nil {
		return abort(fmt.Errorf("commit tx: %w", err))
	}
	return Receipt{UploadID: uploadID, Location: "kafka:" + topic, Rows: t.Len()}, nil
}

// Close flushes pending messages and closes the producer.
func (k *KafkaUploader) Close() error {
	k.producer.Flush(5000)
	k.producer.Close()
	return nil
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaCatalog publishes catalogue entries keyed by dataset id, meant for a
// compacted topic.
type KafkaCatalog struct {
	writer kafkaMessageWriter
	now    func() time.Time
}

// NewKafkaCatalog creates a catalogue publisher.
// bootstrap can be a comma-separated list of host:port.
func NewKafkaCatalog(bootstrap, topic string) *KafkaCatalog {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		if a = strings.TrimSpace(a); a != "" {
			brokers = append(brokers, a)
		}
	}
	return &KafkaCatalog{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, now: time.Now}
}

// NewKafkaCatalogWith is only for tests to inject a fake writer.
func NewKafkaCatalogWith(w kafkaMessageWriter) *KafkaCatalog {
	return &KafkaCatalog{writer: w, now: time.Now}
}

func (k *KafkaCatalog) Publish(ctx context.Context, datasetID string, meta Metadata) error {
	if err := CheckDatasetID(datasetID); err != nil {
		return err
	}
	if meta.PublishedAt.IsZero() {
		meta.PublishedAt = k.now().UTC()
	}
	b, err := json.Marshal(Entry{DatasetID: datasetID, Metadata: meta})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(datasetID), Value: b}); err != nil {
		return fmt.Errorf("kafka catalog %s: %w", datasetID, err)
	}
	return nil
}

// Close closes the writer when it owns a connection.
func (k *KafkaCatalog) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
