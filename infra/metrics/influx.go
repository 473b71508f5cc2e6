package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/infra/logger"
)

const writeTimeout = 5 * time.Second

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes tender records to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: writeTimeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDecision writes a tender_decision point.
func (s *InfluxSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	p := write.NewPointWithMeasurement("tender_decision").
		AddTag("tender_id", ev.TenderID).
		AddTag("outcome", string(ev.Outcome)).
		AddTag("automatic", strconv.FormatBool(ev.Automatic))
	if ev.Reason != "" {
		p = p.AddTag("reason", ev.Reason)
	}
	if ev.CarrierID != "" {
		p = p.AddTag("carrier_id", ev.CarrierID)
	}
	p = p.AddField("amount", round3(ev.Amount)).
		AddField("score", round3(ev.Score)).
		AddField("bids", ev.Bids).
		AddField("latency_s", round3(ev.Latency.Seconds())).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordBid writes a bid_submission point.
func (s *InfluxSink) RecordBid(ev coremetrics.BidEvent) error {
	p := write.NewPointWithMeasurement("bid_submission").
		AddTag("tender_id", ev.TenderID).
		AddTag("carrier_id", ev.CarrierID).
		AddTag("accepted", strconv.FormatBool(ev.Accepted))
	if ev.Reason != "" {
		p = p.AddTag("reason", ev.Reason)
	}
	p = p.AddField("total_cost", round3(ev.TotalCost)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordTransition writes a tender_transition point.
func (s *InfluxSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	p := write.NewPointWithMeasurement("tender_transition").
		AddTag("tender_id", ev.TenderID).
		AddTag("from", string(ev.From)).
		AddTag("to", string(ev.To)).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDelivery writes an event_delivery point.
func (s *InfluxSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	p := write.NewPointWithMeasurement("event_delivery").
		AddTag("event", ev.Event).
		AddTag("tender_id", ev.TenderID).
		AddTag("delivered", strconv.FormatBool(ev.Delivered)).
		AddField("attempts", ev.Attempts).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
