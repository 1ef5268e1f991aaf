package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/procurement/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	clientID           = "procurement-dlq-reprocess"
	envKafkaBrokers    = "PROCUREMENT_KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	aggregate   string
	eventType   string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// matches применяет фильтры -aggregate и -event-type.
func (c config) matches(letter outbox.DeadLetter) bool {
	if c.aggregate != "" && letter.AggregateType != c.aggregate {
		return false
	}
	return c.eventType == "" || letter.EventType == c.eventType
}

// offsetSource: часть sarama.Client, нужная для планирования чтения DLQ.
type offsetSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

// messageSource: часть sarama.Consumer.
type messageSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error)
}

type partitionRange struct {
	partition int32
	start     int64
	end       int64
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
	filtered int
}

// replayer читает DLQ и возвращает события закупок в их рабочие topics.
// Без publisher работает в режиме dry-run.
type replayer struct {
	cfg       config
	offsets   offsetSource
	messages  messageSource
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", "", "target topic for replay (empty: route by aggregate type)")
	fs.StringVar(&cfg.aggregate, "aggregate", "", "replay only this aggregate: purchase_order|supplier|article")
	fs.StringVar(&cfg.eventType, "event-type", "", "replay only this event type, e.g. "+domain.EventStatusChanged)
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replayed events; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest messages of each partition (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv(envKafkaBrokers)
	}
	cfg.brokers = parseBrokers(brokersRaw)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)
	cfg.aggregate = strings.TrimSpace(cfg.aggregate)
	cfg.eventType = strings.TrimSpace(cfg.eventType)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or " + envKafkaBrokers + ")")
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.targetTopic == kafka.TopicDeadLetterQueue || cfg.targetTopic == cfg.sourceTopic:
		return config{}, errors.New("target-topic must differ from the dlq topic")
	case cfg.aggregate != "" && !outbox.KnownAggregate(cfg.aggregate):
		return config{}, fmt.Errorf("unknown aggregate %q (use %s|%s|%s)", cfg.aggregate,
			domain.AggregatePurchaseOrder, domain.AggregateSupplier, domain.AggregateArticle)
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = clientID
	saramaConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaConfig)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	r := &replayer{
		cfg:      cfg,
		offsets:  client,
		messages: consumer,
		logger:   log.WithField("component", "dlq-reprocess"),
	}
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, clientID)
		if err != nil {
			return err
		}
		defer producer.Close()
		r.publisher = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	}

	_, err = r.run(ctx)
	return err
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var stats replayStats
	if r.cfg.execute && r.publisher == nil {
		return stats, errors.New("publisher is required in execute mode")
	}

	r.logger.WithFields(log.Fields{
		"source_topic": r.cfg.sourceTopic,
		"target_topic": r.cfg.targetTopic,
		"aggregate":    r.cfg.aggregate,
		"event_type":   r.cfg.eventType,
		"limit":        r.cfg.limit,
		"execute":      r.cfg.execute,
	}).Info("starting dlq replay")

	ranges, err := r.plan()
	if err != nil {
		return stats, err
	}
	for _, pr := range ranges {
		if stats.scanned >= r.cfg.limit {
			break
		}
		if err := r.consume(ctx, pr, &stats); err != nil {
			return stats, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":  r.cfg.execute,
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
		"filtered": stats.filtered,
	}).Info("dlq replay finished")
	return stats, nil
}

// plan определяет для каждой непустой партиции диапазон offsets [start, end).
func (r *replayer) plan() ([]partitionRange, error) {
	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	ranges := make([]partitionRange, 0, len(partitions))
	for _, partition := range partitions {
		oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
		if err != nil {
			return nil, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
		}
		newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
		if err != nil {
			return nil, fmt.Errorf("newest offset of partition %d: %w", partition, err)
		}
		if newest <= oldest {
			continue
		}
		start := oldest
		if r.cfg.fromNewest && newest-int64(r.cfg.limit) > oldest {
			start = newest - int64(r.cfg.limit)
		}
		ranges = append(ranges, partitionRange{partition: partition, start: start, end: newest})
	}
	return ranges, nil
}

func (r *replayer) consume(ctx context.Context, pr partitionRange, stats *replayStats) error {
	pc, err := r.messages.ConsumePartition(r.cfg.sourceTopic, pr.partition, pr.start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", pr.partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	messages, errs := pc.Messages(), pc.Errors()
	for stats.scanned < r.cfg.limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", pr.partition).Warn("partition went idle before its last offset")
			return nil
		case consumerErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return fmt.Errorf("partition %d: %w", pr.partition, consumerErr)
		case msg, ok := <-messages:
			if !ok || msg.Offset >= pr.end {
				return nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.scanned++
			if err := r.handle(ctx, msg, stats); err != nil {
				return err
			}
			if msg.Offset+1 >= pr.end {
				return nil
			}
		}
	}
	return nil
}

func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage, stats *replayStats) error {
	logger := r.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	letter, err := decodeMessage(msg.Value)
	if err != nil {
		stats.skipped++
		logger.WithError(err).Warn("skip dlq message that cannot be replayed")
		return nil
	}
	if !r.cfg.matches(letter) {
		stats.filtered++
		return nil
	}

	topic := r.cfg.targetTopic
	if topic == "" {
		topic = kafka.TopicFor(letter.AggregateType)
	}
	logger = logger.WithFields(log.Fields{
		"outbox_id":       letter.OutboxID,
		"aggregate_id":    letter.AggregateID,
		"event_type":      letter.EventType,
		"failed_attempts": letter.Attempts,
		"target_topic":    topic,
	})

	if r.publisher == nil {
		logger.Info("dlq replay candidate")
		stats.replayed++
		return nil
	}
	if err := r.publisher.Publish(ctx, letter.Original()); err != nil {
		return fmt.Errorf("replay %s: %w", letter.OutboxID, err)
	}
	logger.Info("dlq message replayed")
	stats.replayed++
	return nil
}

// decodeMessage достаёт DeadLetter из Kafka-конверта, в котором его опубликовал outbox worker.
func decodeMessage(value []byte) (outbox.DeadLetter, error) {
	var envelope kafka.Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return outbox.DeadLetter{}, fmt.Errorf("decode envelope: %w", err)
	}
	return outbox.DecodeDeadLetter(envelope.Payload)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
