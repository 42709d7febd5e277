package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

// JetStream is the part of nats.JetStreamContext used to prepare resources.
type JetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	ObjectStore(bucket string) (nats.ObjectStore, error)
	CreateObjectStore(cfg *nats.ObjectStoreConfig) (nats.ObjectStore, error)
}

// Connect opens a NATS connection and its JetStream context.
func Connect(natsURL, clientName string, log *logger.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	natsConn, err := nats.Connect(
		natsURL,
		nats.Name(clientName),
		nats.Timeout(NatsConnectTimeoutSeconds*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(NatsMaxReconnectAttempts),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Infof("Connected to NATS server at %s", natsURL)

	jetstream, err := natsConn.JetStream()
	if err != nil {
		natsConn.Close()

		return nil, nil, fmt.Errorf("get JetStream context: %w", err)
	}

	return natsConn, jetstream, nil
}

// EnsureStream creates the request stream when it does not exist yet.
func EnsureStream(jetstream JetStream, streamName string, subjects []string, log *logger.Logger) error {
	_, err := jetstream.StreamInfo(streamName)
	if err == nil {
		log.Infof("Found stream '%s'.", streamName)

		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream '%s' info: %w", streamName, err)
	}

	_, err = jetstream.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  subjects,
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream '%s': %w", streamName, err)
	}

	log.Infof("Created stream '%s' for %v.", streamName, subjects)

	return nil
}

// ManuscriptStore binds to the manuscript object store bucket, creating it
// when missing.
func ManuscriptStore(jetstream JetStream, bucket string, log *logger.Logger) (nats.ObjectStore, error) {
	store, err := jetstream.ObjectStore(bucket)
	if err == nil {
		return store, nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) && !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("object store '%s': %w", bucket, err)
	}

	store, err = jetstream.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Generated audio-guide manuscripts",
		Storage:     nats.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store '%s': %w", bucket, err)
	}

	log.Infof("Created object store '%s'.", bucket)

	return store, nil
}
