package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/weft-home/weft/internal/trait"
)

// propertyMeasurement is the measurement all property changes land in.
const propertyMeasurement = "property_change"

// WritePropertyChange records one property change of a hosted endpoint.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Numeric and boolean values land in the "value" field (booleans as 0/1),
// strings in "text". Other value shapes are skipped: arrays and maps have
// no useful time-series representation.
func (c *Client) WritePropertyChange(endpointID string, key trait.PropertyKey, value any, at time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := propertyFields(value)
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		propertyMeasurement,
		map[string]string{
			"endpoint": endpointID,
			"section":  key.Section.String(),
			"trait":    key.Trait,
			"property": key.Name,
		},
		fields,
		at,
	)

	c.writeAPI.WritePoint(point)
}

// propertyFields maps a property value onto point fields.
func propertyFields(value any) map[string]interface{} {
	switch v := value.(type) {
	case float64:
		return map[string]interface{}{"value": v}
	case float32:
		return map[string]interface{}{"value": float64(v)}
	case int:
		return map[string]interface{}{"value": float64(v)}
	case int64:
		return map[string]interface{}{"value": float64(v)}
	case bool:
		if v {
			return map[string]interface{}{"value": 1.0}
		}
		return map[string]interface{}{"value": 0.0}
	case string:
		return map[string]interface{}{"text": v}
	default:
		return nil
	}
}

