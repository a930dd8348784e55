package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ogwatch/lib/attackstore"
	"ogwatch/lib/scrapers/game"
	"ogwatch/lib/scrapers/lobby"
	"ogwatch/lib/sms"
	"ogwatch/lib/watchconfig"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("ogwatch.services.watcher")

// Service drives one polling pass: per configured user, log into the
// lobby, enumerate accounts, and for each account resolve a session,
// detect attacks, filter out the already-reported ones and text the
// rest. Failures never reach wider than the user or account they
// belong to.
type Service struct {
	config watchconfig.Config
	store  attackstore.Store
	sender sms.Sender
	now    func() time.Time
}

func NewService(config watchconfig.Config, store attackstore.Store, sender sms.Sender) Service {
	return Service{
		config: config,
		store:  store,
		sender: sender,
		now:    time.Now,
	}
}

// Run processes every configured user, at most MaxConcurrentUsers at a
// time. Each user gets its own lobby session; the store serializes its
// own writes. The returned error joins all per-user failures, callers
// log it rather than treating it as fatal.
func (s Service) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	sem := make(chan struct{}, s.config.MaxConcurrentUsers)
	var errList []error
	errLock := sync.Mutex{}
	wg := sync.WaitGroup{}

	for _, user := range s.config.Users {
		user := user
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.processUser(ctx, user)
			if err != nil {
				slog.ErrorContext(ctx, "user pass failed", "user", user.Email, "err", err)
				errLock.Lock()
				errList = append(errList, fmt.Errorf("user %s: %w", user.Email, err))
				errLock.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errList) > 0 {
		err := errors.Join(errList...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "one or more user passes failed")
		return err
	}
	return nil
}

func (s Service) processUser(ctx context.Context, user watchconfig.User) error {
	ctx, span := tracer.Start(ctx, "processUser")
	defer span.End()

	slog.InfoContext(ctx, "performing login", "user", user.Email, "mode", user.LoginMode)

	client, err := lobby.NewClient(ctx, lobby.ClientOptions{
		BaseUrl:         s.config.LobbyBaseUrl,
		FacebookBaseUrl: s.config.Facebook.BaseUrl,
	})
	if err != nil {
		return err
	}

	switch user.LoginMode {
	case watchconfig.LoginModeFacebook:
		err = client.LoginFacebook(ctx, user.Email, user.Password, s.config.Facebook.BridgeToken)
	default:
		err = client.LoginPassword(ctx, user.Email, user.Password)
	}
	if err != nil {
		// scoped to this user, the siblings keep running
		return err
	}
	slog.InfoContext(ctx, "successfully logged into the lobby", "user", user.Email)

	accounts, err := client.Accounts(ctx)
	if errors.Is(err, lobby.ErrLobbyUnavailable) {
		slog.ErrorContext(ctx, "could not access lobby, skipping user", "user", user.Email, "err", err)
		return nil
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "enumerated accounts", "user", user.Email, "count", len(accounts))

	var errList []error
	for _, account := range accounts {
		err := s.processAccount(ctx, client, user, account)
		if err != nil {
			// one account must not block its siblings
			slog.ErrorContext(ctx, "account check failed",
				"user", user.Email,
				"account", account.Id,
				"server", account.Server.Number,
				"err", err,
			)
			errList = append(errList, fmt.Errorf("account %d: %w", account.Id, err))
		}
	}
	return errors.Join(errList...)
}

func (s Service) processAccount(ctx context.Context, client *lobby.Client, user watchconfig.User, account lobby.Account) error {
	ctx, span := tracer.Start(ctx, "processAccount")
	defer span.End()

	sessionUrl, err := client.LoginLink(ctx, account)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "resolved session url",
		"account", account.Id,
		"server", account.Server.Number,
		"language", account.Server.Language,
	)

	attacks, err := game.Detect(ctx, client.Http, sessionUrl)
	if err != nil {
		return err
	}
	if len(attacks) == 0 {
		return nil
	}

	fresh, err := s.store.FilterNew(ctx, user.Email, attacks)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		slog.InfoContext(ctx, "all incoming attacks already reported",
			"user", user.Email,
			"account", account.Id,
		)
		return nil
	}

	return s.notify(ctx, user, fresh)
}

// one message per account batch, counting down to the earliest arrival
func (s Service) notify(ctx context.Context, user watchconfig.User, attacks []game.Attack) error {
	ctx, span := tracer.Start(ctx, "notify")
	defer span.End()

	earliest := attacks[0].ArrivalTime
	for _, attack := range attacks[1:] {
		if attack.ArrivalTime < earliest {
			earliest = attack.ArrivalTime
		}
	}
	countdown := time.Unix(earliest, 0).Sub(s.now()).Round(time.Second)

	body := fmt.Sprintf(
		"You're under attack! Earliest fleet arrives in %s. - OGame Incoming!",
		countdown,
	)
	err := s.sender.Send(ctx, user.CellNumber, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send attack notification")
		return err
	}
	slog.InfoContext(ctx, "sent attack notification",
		"user", user.Email,
		"new_attacks", len(attacks),
		"arrives_in", countdown.String(),
	)
	return nil
}
