// Package telemetry pushes periodic readings of the board to InfluxDB.
package telemetry

import (
	"context"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/pkg/errors"
)

const defaultMeasurement = "lockbox"

// Reading is one sample of the analog channels and digital words.
type Reading struct {
	Voltages map[string]float64 // by pin name, AIN0..AOUT3
	Words    map[string]uint32  // leds, dio_p_out, ...
}

// Fields flattens r into influx fields with lower case keys.
func Fields(r Reading) map[string]interface{} {
	fields := make(map[string]interface{}, len(r.Voltages)+len(r.Words))
	for name, v := range r.Voltages {
		fields[strings.ToLower(name)] = v
	}
	for name, w := range r.Words {
		fields[strings.ToLower(name)] = int64(w)
	}
	return fields
}

type InfluxExporter struct {
	Host         string
	Organization string
	Bucket       string
	Measurement  string
	Token        string

	Tags map[string]string

	client   influxdb2.Client
	writeApi api.WriteAPIBlocking
	ready    bool
}

func (ie *InfluxExporter) Setup(ctx context.Context) error {
	if len(ie.Host) == 0 || len(ie.Bucket) == 0 {
		return errors.New("influx host and bucket are required")
	}
	if len(ie.Measurement) == 0 {
		ie.Measurement = defaultMeasurement
	}

	ie.client = influxdb2.NewClient(ie.Host, ie.Token)
	health, err := ie.client.Health(ctx)
	if err != nil {
		ie.client.Close()
		return errors.Wrapf(err, "failed to reach influx at %s", ie.Host)
	}
	if health.Status != domain.HealthCheckStatusPass {
		ie.client.Close()
		return errors.Errorf("influx at %s reports status %s", ie.Host, health.Status)
	}

	ie.writeApi = ie.client.WriteAPIBlocking(ie.Organization, ie.Bucket)
	ie.ready = true
	return nil
}

func (ie *InfluxExporter) IsReady() bool {
	return ie.ready
}

func (ie *InfluxExporter) Close() error {
	if ie.client != nil {
		ie.client.Close()
	}
	ie.ready = false
	return nil
}

func (ie *InfluxExporter) Write(ctx context.Context, r Reading, ts time.Time) error {
	if !ie.ready {
		return errors.New("influx exporter not set up")
	}

	point := influxdb2.NewPoint(ie.Measurement, ie.Tags, Fields(r), ts)
	if err := ie.writeApi.WritePoint(ctx, point); err != nil {
		return errors.Wrap(err, "failed to write telemetry point")
	}
	return nil
}
