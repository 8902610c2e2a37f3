package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/gopherchat/gopherchat/internal/assistant"
	"github.com/gopherchat/gopherchat/internal/chat"
	"github.com/gopherchat/gopherchat/internal/common"
	"github.com/gopherchat/gopherchat/internal/config"
	"github.com/gopherchat/gopherchat/internal/db"
	"github.com/gopherchat/gopherchat/internal/logger"
	"github.com/gopherchat/gopherchat/internal/session"
	"github.com/gopherchat/gopherchat/internal/store/rabbitmq"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

const (
	maxJobRetries = 3
	jobRetryDelay = 15 * time.Second
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()
	log := logger.Log

	gdb := db.Connect(cfg.DBDSN)
	repo := chat.NewRepo(gdb)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	states := session.NewStore(rdb, cfg.SessionTTL)

	reg := assistant.BuiltinProviders(
		cfg.OllamaBaseURL,
		cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey,
		cfg.OpenRouterSiteURL, cfg.OpenRouterAppName)
	name := strings.ToLower(cfg.AIProvider)
	if name == "" {
		name = "ollama"
	}
	model := cfg.OllamaModel
	if name == "openrouter" {
		model = cfg.OpenRouterModel
	}
	provider, err := reg.Get(context.Background(), name, model)
	if err != nil {
		log.WithError(err).Fatal("assistant provider")
	}
	bot := assistant.NewBot(provider, cfg.AITimeout, "")
	bot.AllowModelSwitch(reg, name, model)

	svc := chat.NewService(repo, states, bot, cfg.ChatContextWindowSize)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.WithError(err).Fatal("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Fatal("rabbit channel")
	}
	defer ch.Close()

	// Same topology as the publisher; the broker rejects a re-declaration
	// with different arguments.
	queues := rabbitmq.QueuesFor(cfg.RabbitQueue)
	if err := queues.Declare(ch); err != nil {
		log.WithError(err).Fatal("queue declare")
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.WithError(err).Fatal("qos")
	}

	msgs, err := ch.Consume(queues.Main, "", false, false, false, false, nil)
	if err != nil {
		log.WithError(err).Fatal("consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("queue", queues.Main).
		WithField("concurrency", concurrency).
		Info("worker started")

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.WithField("worker", workerID).WithError(err).Warn("bad message")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				err := handleJob(ctx, svc, repo, m.JobID)
				if err == nil {
					if err := d.Ack(false); err != nil {
						log.WithField("worker", workerID).
							WithField("job_id", m.JobID).
							WithError(err).Error("ack failed")
					}
					continue
				}

				// Transient upstream failures go through the retry queue;
				// anything else, or a job out of retries, is marked failed
				// and dead-lettered.
				if errors.Is(err, common.ErrUpstream) && rabbitmq.RetryCount(d) < maxJobRetries {
					perr := rabbitmq.PublishRetry(ctx, ch, queues, d, jobRetryDelay)
					if perr == nil {
						log.WithField("worker", workerID).
							WithField("job_id", m.JobID).
							WithField("attempt", rabbitmq.RetryCount(d)+1).
							WithError(err).Warn("job retried")
						_ = d.Ack(false)
						continue
					}
					log.WithField("worker", workerID).
						WithField("job_id", m.JobID).
						WithError(perr).Error("retry publish failed")
				}

				_ = repo.MarkJobFailed(ctx, m.JobID, err.Error())
				log.WithField("worker", workerID).
					WithField("job_id", m.JobID).
					WithField("cost", time.Since(start).String()).
					WithError(err).Error("job failed")
				_ = d.Nack(false, false)
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleJob(ctx context.Context, svc *chat.Service, repo *chat.Repo, jobID string) error {
	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	_, assistantMsgID, err := svc.GenerateAssistantReplyAndInsert(ctx, j.UserID, j.ChatID)
	if err != nil {
		return err
	}

	return repo.MarkJobSucceeded(ctx, jobID, assistantMsgID)
}
