package e2e

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient reads back what the influx metrics sink wrote during the
// end-to-end run.
type InfluxClient struct {
	org    string
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

func NewInfluxClient(url, org, bucket, token string) *InfluxClient {
	c := influxdb2.NewClient(url, token)
	return &InfluxClient{org: org, bucket: bucket, client: c, query: c.QueryAPI(org)}
}

// CountPoints returns the number of field values recorded for measurement
// and tag tenderID in the last hour.
func (c *InfluxClient) CountPoints(ctx context.Context, measurement, tenderID string) (int, error) {
	flux := fmt.Sprintf(`from(bucket:%q) |> range(start:-1h) |> filter(fn: (r) => r._measurement == %q and r.tender_id == %q)`,
		c.bucket, measurement, tenderID)
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return 0, err
	}
	defer res.Close()
	n := 0
	for res.Next() {
		n++
	}
	return n, res.Err()
}

// TagValue returns the first value of tag on the measurement for tenderID.
func (c *InfluxClient) TagValue(ctx context.Context, measurement, tenderID, tag string) (string, error) {
	flux := fmt.Sprintf(`from(bucket:%q) |> range(start:-1h) |> filter(fn: (r) => r._measurement == %q and r.tender_id == %q) |> limit(n:1)`,
		c.bucket, measurement, tenderID)
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return "", err
	}
	defer res.Close()
	for res.Next() {
		if v, ok := res.Record().ValueByKey(tag).(string); ok {
			return v, nil
		}
	}
	return "", res.Err()
}

func (c *InfluxClient) Close() { c.client.Close() }
