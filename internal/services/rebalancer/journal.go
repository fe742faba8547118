package rebalancer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	intentKeyPrefix     = "rebalance_intent_"
	intentStatusPending = "pending"
	intentStatusDone    = "done"
	intentStatusFailed  = "failed"

	orderLinkIDPrefix = "rebal_"

	walSegmentThreshold = 1000
	walMaxSegments      = 100
	walDirPermissions   = 0o755
)

// tradeIntent is the crash-safe record written before every order
// submission. Its ID doubles as the exchange order-link id, so an intent
// left pending by a crash can be resolved against the exchange on restart.
type tradeIntent struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	OrderID    string    `json:"order_id,omitempty"`
	Coin       string    `json:"coin"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Qty        string    `json:"qty"`
	MarketUnit string    `json:"market_unit"`
	Price      string    `json:"price"`
	USDTAmount string    `json:"usdt_amount"`
	Time       time.Time `json:"time"`
	Error      string    `json:"error,omitempty"`
}

func newOrderLinkID() string {
	return orderLinkIDPrefix + uuid.New().String()[:8]
}

// intentJournal persists trade intents in a write-ahead log. Records are
// append-only; the latest record per intent id wins on replay.
type intentJournal struct {
	wal *gowal.Wal
}

func openIntentJournal(dir string) (*intentJournal, error) {
	if err := os.MkdirAll(dir, walDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure journal directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open intent journal")
	}
	return &intentJournal{wal: wal}, nil
}

func (j *intentJournal) persist(intent *tradeIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "failed to marshal trade intent")
	}
	key := fmt.Sprintf("%s%s", intentKeyPrefix, intent.ID)
	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, data)
}

func (j *intentJournal) markDone(intent *tradeIntent, orderID string) error {
	intent.Status = intentStatusDone
	intent.OrderID = orderID
	intent.Error = ""
	return j.persist(intent)
}

func (j *intentJournal) markFailed(intent *tradeIntent, err error) error {
	intent.Status = intentStatusFailed
	if err != nil {
		intent.Error = err.Error()
	}
	return j.persist(intent)
}

// pending replays the log and returns the intents whose latest record is
// still pending: orders that may have reached the exchange with no
// recorded outcome.
func (j *intentJournal) pending() []*tradeIntent {
	latest := make(map[string]*tradeIntent)
	order := make([]string, 0)

	for msg := range j.wal.Iterator() {
		var intent tradeIntent
		if err := json.Unmarshal(msg.Value, &intent); err != nil {
			continue
		}
		if _, seen := latest[intent.ID]; !seen {
			order = append(order, intent.ID)
		}
		record := intent
		latest[intent.ID] = &record
	}

	pending := make([]*tradeIntent, 0)
	for _, id := range order {
		if latest[id].Status == intentStatusPending {
			pending = append(pending, latest[id])
		}
	}
	return pending
}

func (j *intentJournal) Close() error {
	return j.wal.Close()
}
