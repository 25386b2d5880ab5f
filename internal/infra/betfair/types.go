package betfair

// Stream operation discriminators.
const (
	opAuthentication     = "authentication"
	opMarketSubscription = "marketSubscription"
	OpConnection         = "connection"
	OpStatus             = "status"
	OpMarketChange       = "mcm"
)

const statusFailure = "FAILURE"

// authenticationMessage is the first outbound frame on a new stream.
type authenticationMessage struct {
	Op      string `json:"op"`
	ID      int    `json:"id"`
	AppKey  string `json:"appKey"`
	Session string `json:"session"`
}

// marketFilter names the markets a subscription covers. Always exactly
// one market per worker.
type marketFilter struct {
	MarketIDs []string `json:"marketIds"`
}

// marketDataFilter selects which price data the stream delivers.
type marketDataFilter struct {
	LadderLevels int      `json:"ladderLevels"`
	Fields       []string `json:"fields"`
}

// marketSubscriptionMessage is the second outbound frame.
type marketSubscriptionMessage struct {
	Op                  string           `json:"op"`
	ID                  int              `json:"id"`
	SegmentationEnabled bool             `json:"segmentationEnabled"`
	HeartbeatMS         int              `json:"heartbeatMs"`
	MarketFilter        marketFilter     `json:"marketFilter"`
	MarketDataFilter    marketDataFilter `json:"marketDataFilter"`
}

// FrameHeader carries only the discriminator; frames are re-decoded into
// their concrete type once the op is known.
type FrameHeader struct {
	Op string `json:"op"`
	ID int    `json:"id"`
}

// ConnectionMessage acknowledges a new stream connection.
type ConnectionMessage struct {
	Op           string `json:"op"`
	ConnectionID string `json:"connectionId"`
}

// StatusMessage reports the outcome of a request or a connection-level
// condition.
type StatusMessage struct {
	Op               string `json:"op"`
	ID               int    `json:"id"`
	StatusCode       string `json:"statusCode"` // SUCCESS or FAILURE
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	ConnectionClosed *bool  `json:"connectionClosed,omitempty"`
}

// IsFailure reports whether this status describes an error.
func (s *StatusMessage) IsFailure() bool {
	return s.StatusCode == statusFailure || s.ErrorCode != ""
}

// MarketChangeMessage is an mcm frame: zero or more per-market change
// blocks plus a publish timestamp.
type MarketChangeMessage struct {
	Op string         `json:"op"`
	ID int            `json:"id"`
	Ct string         `json:"ct,omitempty"` // change type; HEARTBEAT frames carry no mc
	Pt int64          `json:"pt"`
	MC []MarketChange `json:"mc,omitempty"`
}

// MarketChange is one market's delta inside an mcm frame.
type MarketChange struct {
	ID               string            `json:"id"`
	MarketDefinition *MarketDefinition `json:"marketDefinition,omitempty"`
	RC               []RunnerChange    `json:"rc,omitempty"`
}

// MarketDefinition carries the fields this system consumes; the wire
// object is much larger but everything else is ignored.
type MarketDefinition struct {
	Status string `json:"status"`
}

// RunnerChange is a per-runner price delta. Ladder entries are
// [level, price, size] triples; with ladderLevels=1 only level 0 appears.
type RunnerChange struct {
	ID   int64       `json:"id"`
	BATB [][]float64 `json:"batb,omitempty"` // best available to back
	BATL [][]float64 `json:"batl,omitempty"` // best available to lay
	LTP  *float64    `json:"ltp,omitempty"`
}

// BestBack returns the level-0 back price, if present.
func (rc *RunnerChange) BestBack() (float64, bool) {
	return bestLadderPrice(rc.BATB)
}

// BestLay returns the level-0 lay price, if present.
func (rc *RunnerChange) BestLay() (float64, bool) {
	return bestLadderPrice(rc.BATL)
}

func bestLadderPrice(ladder [][]float64) (float64, bool) {
	for _, entry := range ladder {
		if len(entry) >= 2 && entry[0] == 0 {
			// A zero price means the level was removed.
			if entry[1] > 0 {
				return entry[1], true
			}
			return 0, false
		}
	}
	return 0, false
}
