package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/tender"
	"github.com/kilianp07/tendering/infra/logger"
)

// IntakeConfig enables bid submission over MQTT. Carriers publish a bid on
// <bid_prefix>/<tender id>/<carrier id> and withdraw it on the same topic
// suffixed with /withdraw. The outcome is published on
// <result_prefix>/<tender id>/<carrier id>.
type IntakeConfig struct {
	Enabled      bool   `json:"enabled"`
	MQTT         Config `json:"mqtt"`
	BidPrefix    string `json:"bid_prefix"`
	ResultPrefix string `json:"result_prefix"`
}

func (c *IntakeConfig) SetDefaults() {
	if c.BidPrefix == "" {
		c.BidPrefix = "tendering/bids"
	}
	if c.ResultPrefix == "" {
		c.ResultPrefix = "tendering/bid-results"
	}
	c.BidPrefix = strings.TrimSuffix(c.BidPrefix, "/")
	c.ResultPrefix = strings.TrimSuffix(c.ResultPrefix, "/")
	c.MQTT.SetDefaults()
}

func (c IntakeConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BidPrefix == c.ResultPrefix {
		return fmt.Errorf("mqtt intake: bid_prefix and result_prefix must differ")
	}
	return c.MQTT.Validate()
}

// BidSubmitter is the engine surface the intake drives.
type BidSubmitter interface {
	SubmitBid(tenderID, carrierID string, p model.BidPayload) (model.CarrierBid, error)
	WithdrawBid(tenderID, carrierID string) error
}

// BidResult is published for every handled message.
type BidResult struct {
	TenderID  string    `json:"tender_id"`
	CarrierID string    `json:"carrier_id"`
	Action    string    `json:"action"`
	Accepted  bool      `json:"accepted"`
	BidID     string    `json:"bid_id,omitempty"`
	TotalCost float64   `json:"total_cost,omitempty"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type bidMessage struct {
	model.BidPayload
	ValidFor string `json:"valid_for,omitempty"`
}

type intakeClient interface {
	pahoClient
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newIntakeClient = func(opts *paho.ClientOptions) intakeClient {
	return paho.NewClient(opts)
}

// Intake turns MQTT messages into bid submissions and withdrawals.
type Intake struct {
	cfg     IntakeConfig
	cli     intakeClient
	engine  BidSubmitter
	log     logger.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewIntake connects a dedicated client to the broker.
func NewIntake(cfg IntakeConfig, engine BidSubmitter) (*Intake, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg.MQTT)
	if err != nil {
		return nil, err
	}
	id := cfg.MQTT.ClientID
	if id != "" {
		id += "-intake"
	} else {
		id = "intake-" + uuid.NewString()
	}
	opts.SetClientID(id)
	in := &Intake{
		cfg:     cfg,
		engine:  engine,
		log:     logger.New("bid_intake"),
		now:     time.Now,
		timeout: time.Duration(cfg.MQTT.TimeoutMS) * time.Millisecond,
	}
	in.cli = newIntakeClient(opts)
	token := in.cli.Connect()
	if !token.WaitTimeout(in.timeout) {
		return nil, fmt.Errorf("mqtt intake: connect to %s timed out", cfg.MQTT.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *Intake) topics() []string {
	return []string{in.cfg.BidPrefix + "/+/+", in.cfg.BidPrefix + "/+/+/withdraw"}
}

// Start subscribes and blocks until ctx is done, then unsubscribes and
// disconnects.
func (in *Intake) Start(ctx context.Context) error {
	for _, topic := range in.topics() {
		token := in.cli.Subscribe(topic, in.cfg.MQTT.QoS, in.onMessage)
		if !token.WaitTimeout(in.timeout) {
			return fmt.Errorf("mqtt intake: subscribe %s timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt intake: subscribe %s: %w", topic, err)
		}
	}
	in.log.Infof("bid intake listening on %s/#", in.cfg.BidPrefix)
	<-ctx.Done()
	if in.cli.IsConnected() {
		in.cli.Unsubscribe(in.topics()...).WaitTimeout(in.timeout)
		in.cli.Disconnect(250)
	}
	return nil
}

func (in *Intake) onMessage(_ paho.Client, msg paho.Message) {
	res, ok := in.handle(msg.Topic(), msg.Payload())
	if !ok {
		in.log.Warnf("ignoring message on %s", msg.Topic())
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		in.log.Errorf("encode bid result: %v", err)
		return
	}
	topic := fmt.Sprintf("%s/%s/%s", in.cfg.ResultPrefix, res.TenderID, res.CarrierID)
	token := in.cli.Publish(topic, in.cfg.MQTT.QoS, false, b)
	if !token.WaitTimeout(in.timeout) {
		in.log.Warnf("publish %s timed out", topic)
	} else if err := token.Error(); err != nil {
		in.log.Warnf("publish %s: %v", topic, err)
	}
}

// parseTopic splits <prefix>/<tender>/<carrier>[/withdraw].
func (in *Intake) parseTopic(topic string) (tenderID, carrierID string, withdraw, ok bool) {
	rest, found := strings.CutPrefix(topic, in.cfg.BidPrefix+"/")
	if !found {
		return "", "", false, false
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2:
	case len(parts) == 3 && parts[2] == "withdraw":
		withdraw = true
	default:
		return "", "", false, false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", false, false
	}
	return parts[0], parts[1], withdraw, true
}

func (in *Intake) handle(topic string, payload []byte) (BidResult, bool) {
	tenderID, carrierID, withdraw, ok := in.parseTopic(topic)
	if !ok {
		return BidResult{}, false
	}
	res := BidResult{TenderID: tenderID, CarrierID: carrierID, Action: "submit", At: in.now().UTC()}
	var err error
	if withdraw {
		res.Action = "withdraw"
		err = in.engine.WithdrawBid(tenderID, carrierID)
	} else {
		var bid model.CarrierBid
		bid, err = in.submit(tenderID, carrierID, payload)
		res.BidID, res.TotalCost = bid.ID, bid.TotalCost
	}
	if err != nil {
		res.Code, res.Error = tender.ErrorCode(err), err.Error()
		in.log.Debugw("bid refused", map[string]any{"tender_id": tenderID, "carrier_id": carrierID, "code": res.Code})
		return res, true
	}
	res.Accepted = true
	return res, true
}

func (in *Intake) submit(tenderID, carrierID string, payload []byte) (model.CarrierBid, error) {
	var msg bidMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return model.CarrierBid{}, fmt.Errorf("%w: %v", tender.ErrValidation, err)
	}
	p := msg.BidPayload
	if msg.ValidFor != "" {
		d, err := time.ParseDuration(msg.ValidFor)
		if err != nil {
			return model.CarrierBid{}, fmt.Errorf("%w: valid_for: %v", tender.ErrValidation, err)
		}
		p.ValidFor = d
	}
	if err := p.Validate(); err != nil {
		return model.CarrierBid{}, fmt.Errorf("%w: %v", tender.ErrValidation, err)
	}
	return in.engine.SubmitBid(tenderID, carrierID, p)
}
