package game

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"ogwatch/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("ogwatch.lib.scrapers.game")

// every selector coupling us to the game's markup lives here
const (
	attackAlertSelector = "#attack_alert"
	noAttackClass       = "noAttack"
	attackRowSelector   = `tr[data-mission-type="1"]`
	hostileSelector     = ".countDown.hostile"
	originSelector      = ".originFleet"
	destinationSelector = ".destFleet"

	arrivalTimeAttr = "data-arrival-time"
)

type Attack struct {
	Id          string `toml:"id"`
	ArrivalTime int64  `toml:"arrival_time"`
	Origin      string `toml:"origin"`
	Destination string `toml:"destination"`
}

// Detect fetches the game landing page behind a one-time session url
// and, when the attack banner is up, parses the event list into the
// hostile attacks currently inbound. An empty result with a nil error
// means all clear.
//
// The session url is single-use and time-limited, a failure fetching
// it usually means it expired or was already consumed.
func Detect(ctx context.Context, httpc *resty.Client, sessionUrl string) ([]Attack, error) {
	ctx, span := tracer.Start(ctx, "Detect")
	defer span.End()

	res, err := httpc.R().
		SetContext(ctx).
		Get(sessionUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch game landing page")
		return nil, err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "game landing page rejected session url")
		return nil, fmt.Errorf("game login failed: status %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse game landing page")
		return nil, err
	}

	if !underAttack(doc) {
		slog.InfoContext(ctx, "all clear", "url", sessionUrl)
		return nil, nil
	}
	slog.InfoContext(ctx, "attack banner present, fetching event list")

	eventUrl, err := eventListUrl(sessionUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to derive event list url")
		return nil, err
	}

	res, err = httpc.R().
		SetContext(ctx).
		Get(eventUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch event list")
		return nil, err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "event list request rejected")
		return nil, fmt.Errorf("event list fetch failed: status %s", res.Status())
	}

	events, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse event list")
		return nil, err
	}

	return readAttacks(ctx, events), nil
}

// the alert element is always present in the page, it carries the
// noAttack class when nothing is inbound
func underAttack(doc *goquery.Document) bool {
	alert := doc.Find(attackAlertSelector)
	return alert.Length() > 0 && !alert.HasClass(noAttackClass)
}

func eventListUrl(sessionUrl string) (string, error) {
	parsed, err := url.Parse(sessionUrl)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("session url %q has no host", sessionUrl)
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/game/index.php?page=eventList&ajax=1", scheme, parsed.Host), nil
}

func readAttacks(ctx context.Context, doc *goquery.Document) []Attack {
	ctx, span := tracer.Start(ctx, "readAttacks")
	defer span.End()

	var attacks []Attack
	doc.Find(attackRowSelector).Each(func(_ int, row *goquery.Selection) {
		// mission type 1 also covers own and allied fleets, only the
		// hostile countdown marker distinguishes a real attack
		if row.Find(hostileSelector).Length() == 0 {
			return
		}

		id := stripRowIdPrefix(row.AttrOr("id", ""))
		if id == "" {
			slog.ErrorContext(ctx, "skipping event row without an id")
			return
		}

		arrival, err := strconv.ParseInt(row.AttrOr(arrivalTimeAttr, ""), 10, 64)
		if err != nil {
			slog.ErrorContext(ctx, "skipping event row with bad arrival time", "id", id, "err", err)
			return
		}

		origin := row.Find(originSelector)
		destination := row.Find(destinationSelector)
		if origin.Length() == 0 || destination.Length() == 0 {
			// event pages can render partial cells, drop the row
			// instead of failing the whole pass
			slog.ErrorContext(ctx, "skipping malformed event row", "id", id)
			return
		}

		attack := Attack{
			Id:          id,
			ArrivalTime: arrival,
			Origin:      htmlutil.SelectionText(origin),
			Destination: htmlutil.SelectionText(destination),
		}
		slog.InfoContext(ctx, "incoming attack",
			"id", attack.Id,
			"arrival_time", attack.ArrivalTime,
			"origin", attack.Origin,
			"destination", attack.Destination,
		)
		attacks = append(attacks, attack)
	})

	return attacks
}

// row ids come prefixed ("eventRow-12345"), only the numeric part is
// stable across pages
func stripRowIdPrefix(id string) string {
	if i := strings.LastIndexByte(id, '-'); i >= 0 {
		return id[i+1:]
	}
	return id
}
