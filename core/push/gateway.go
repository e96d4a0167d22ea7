package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Supported gateway drivers.
const (
	DriverFCM = "fcm"
	DriverLog = "log"
)

// ErrTopicRequired is returned for a message without a topic.
var ErrTopicRequired = errors.New("push topic is required")

// Config holds push gateway settings.
type Config struct {
	// Driver is fcm or log.
	Driver string `mapstructure:"driver" default:"log"`
	// ProjectID is the Firebase project receiving the send requests.
	ProjectID string `mapstructure:"project_id" default:""`
	// CredentialsFile is a service account JSON; empty uses application default credentials.
	CredentialsFile string `mapstructure:"credentials_file" default:""`
	// Topic is the broadcast topic for new content.
	Topic string `mapstructure:"topic" default:"new_stories"`
	// RatePerSecond throttles sends; 0 disables throttling.
	RatePerSecond float64 `mapstructure:"rate_per_second" default:"5"`
	// TimeoutSeconds bounds one send.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"10"`
}

// Message is one topic broadcast.
type Message struct {
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

// Gateway delivers push messages and returns the provider's message id.
type Gateway interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New builds the gateway selected by cfg, throttled when a rate is configured.
func New(ctx context.Context, cfg Config, log *zap.Logger, opts ...option.ClientOption) (Gateway, error) {
	var gw Gateway
	switch cfg.Driver {
	case DriverLog, "":
		gw = NewLogGateway(log)
	case DriverFCM:
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		fg, err := NewFCM(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, err
		}
		gw = fg
	default:
		return nil, fmt.Errorf("unsupported push driver: %s", cfg.Driver)
	}

	if cfg.TimeoutSeconds > 0 {
		gw = WithTimeout(gw, time.Duration(cfg.TimeoutSeconds)*time.Second)
	}
	if cfg.RatePerSecond > 0 {
		gw = WithRateLimit(gw, cfg.RatePerSecond)
	}
	return gw, nil
}

// FCMGateway sends through the Firebase Cloud Messaging HTTP v1 API.
type FCMGateway struct {
	svc       *fcm.Service
	projectID string
}

// NewFCM creates a gateway for projectID.
func NewFCM(ctx context.Context, projectID string, opts ...option.ClientOption) (*FCMGateway, error) {
	if projectID == "" {
		return nil, errors.New("push project id is required for the fcm driver")
	}
	opts = append([]option.ClientOption{option.WithScopes(fcm.CloudPlatformScope)}, opts...)
	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create fcm service: %w", err)
	}
	return &FCMGateway{svc: svc, projectID: projectID}, nil
}

func (g *FCMGateway) Send(ctx context.Context, msg Message) (string, error) {
	if msg.Topic == "" {
		return "", ErrTopicRequired
	}
	req := &fcm.SendMessageRequest{
		Message: &fcm.Message{
			Topic: msg.Topic,
			Notification: &fcm.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
		},
	}
	res, err := g.svc.Projects.Messages.Send("projects/"+g.projectID, req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
			return "", fmt.Errorf("push quota exceeded: %w", err)
		}
		return "", fmt.Errorf("failed to send push to topic %s: %w", msg.Topic, err)
	}
	return res.Name, nil
}

// LogGateway only logs messages. Used when no provider is configured.
type LogGateway struct {
	log *zap.Logger
}

// NewLogGateway creates a log-only gateway.
func NewLogGateway(log *zap.Logger) *LogGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogGateway{log: log}
}

func (g *LogGateway) Send(_ context.Context, msg Message) (string, error) {
	if msg.Topic == "" {
		return "", ErrTopicRequired
	}
	g.log.Info("Push message",
		zap.String("topic", msg.Topic),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Any("data", msg.Data),
	)
	return "log/" + msg.Topic, nil
}

type limited struct {
	next    Gateway
	limiter *rate.Limiter
}

// WithRateLimit throttles next to perSecond sends with a burst of twice that.
func WithRateLimit(next Gateway, perSecond float64) Gateway {
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return &limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *limited) Send(ctx context.Context, msg Message) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("push throttled: %w", err)
	}
	return l.next.Send(ctx, msg)
}

type bounded struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds every send of next.
func WithTimeout(next Gateway, d time.Duration) Gateway {
	return &bounded{next: next, timeout: d}
}

func (b *bounded) Send(ctx context.Context, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Send(ctx, msg)
}
