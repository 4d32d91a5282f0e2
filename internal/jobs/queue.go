package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/framevault/internal/transcode"
)

// VideoQueueKey 视频转码任务队列的 Redis 列表键
const VideoQueueKey = "queue:video"

// VideoJob 一条转码任务。输入文件先落到本地临时目录，队列里只传路径
type VideoJob struct {
	ID         string            `json:"id"`
	UserID     uuid.UUID         `json:"userId"`
	InputPath  string            `json:"inputPath"`
	FileName   string            `json:"fileName"`
	Options    transcode.Options `json:"options"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// Queue 基于 Redis 列表的任务队列：LPUSH 入队，BRPOP 出队
type Queue struct {
	rdb *redis.Client
	key string
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb, key: VideoQueueKey}
}

// Enqueue 入队。任务 id 缺省时自动生成
func (q *Queue) Enqueue(ctx context.Context, job *VideoJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, payload).Err()
}

// Dequeue 阻塞出队，等满 timeout 没有任务时返回 (nil, nil)
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*VideoJob, error) {
	vals, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	// BRPOP 返回 [键名, 值]
	var job VideoJob
	if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Len 当前积压任务数
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
