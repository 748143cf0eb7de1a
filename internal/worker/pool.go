package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/generation"
)

const (
	generationQueue = "queue:generation"
	lockTTL         = 10 * time.Minute
)

type generationJob struct {
	IntentID uuid.UUID `json:"intent_id"`
}

// Queue is the producer side of the generation pipeline. The scheduler
// and the HTTP handlers push intent IDs; the pool pops them.
type Queue struct {
	redis  *redis.Client
	logger *log.Logger
}

func NewQueue(redisClient *redis.Client, logger *log.Logger) *Queue {
	return &Queue{redis: redisClient, logger: logger}
}

func (q *Queue) Enqueue(ctx context.Context, intentID uuid.UUID) error {
	payload, err := json.Marshal(generationJob{IntentID: intentID})
	if err != nil {
		return fmt.Errorf("failed to marshal generation job: %w", err)
	}
	if err := q.redis.LPush(ctx, generationQueue, string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue generation job: %w", err)
	}
	return nil
}

// EnqueueAt re-queues an intent once the given instant arrives, without
// tying up a worker in the meantime.
func (q *Queue) EnqueueAt(intentID uuid.UUID, at time.Time) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		if err := q.Enqueue(context.Background(), intentID); err != nil {
			q.logger.Error("delayed enqueue failed", "intent_id", intentID, "error", err)
		}
	})
}

type Orchestrator interface {
	EnsureContent(ctx context.Context, intentID uuid.UUID) error
}

// Pool runs the background workers that drive intents to ready. Workers
// coordinate through Redis so multiple instances never generate the
// same intent twice.
type Pool struct {
	redis         *redis.Client
	queue         *Queue
	orchestrator  Orchestrator
	retryInterval time.Duration
	workerCount   int
	stopChan      chan struct{}
	logger        *log.Logger
}

func NewPool(
	redisClient *redis.Client,
	queue *Queue,
	orchestrator Orchestrator,
	retryInterval time.Duration,
	workerCount int,
	logger *log.Logger,
) *Pool {
	return &Pool{
		redis:         redisClient,
		queue:         queue,
		orchestrator:  orchestrator,
		retryInterval: retryInterval,
		workerCount:   workerCount,
		stopChan:      make(chan struct{}),
		logger:        logger,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	p.logger.Info("generation workers started", "count", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			p.logger.Info("worker shutting down", "worker", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, generationQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job generationJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			p.logger.Error("failed to parse generation job", "worker", id, "error", err)
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("intent_lock:%s", job.IntentID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue // Another worker has this intent
		}

		p.process(ctx, job.IntentID)

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) process(ctx context.Context, intentID uuid.UUID) {
	err := p.orchestrator.EnsureContent(ctx, intentID)
	if err == nil {
		return
	}

	var notDue *generation.NotDueError
	if errors.As(err, &notDue) {
		p.logger.Debug("generation not due yet", "intent_id", intentID, "opens_at", notDue.OpensAt)
		p.queue.EnqueueAt(intentID, notDue.OpensAt)
		return
	}

	// The orchestrator has already recorded the failure. Pushing the
	// job back once gives the automatic retry its slot; exhausted
	// intents no-op on the next pass.
	p.logger.Warn("generation attempt failed", "intent_id", intentID, "error", err)
	p.queue.EnqueueAt(intentID, time.Now().Add(p.retryInterval))
}
