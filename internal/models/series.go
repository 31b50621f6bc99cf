package models

import "fmt"

// Axis identifiers of the dashboard chart.
const (
	AxisMMI              = "MMI"
	AxisRichterMagnitude = "RichterMagnitude"
)

// Series is the renderer view of one device buffer: three index-aligned sequences.
type Series struct {
	DeviceID         string      `json:"deviceId"`
	Times            []Timestamp `json:"times"`
	MMI              []*float64  `json:"mmi"`
	RichterMagnitude []*float64  `json:"richterMagnitude"`
}

// Len is the number of samples in the series.
func (s Series) Len() int {
	return len(s.Times)
}

// Dataset describes one plotted line and the axis it is drawn against.
type Dataset struct {
	Label    string `json:"label"`
	AxisID   string `json:"yAxisID"`
	Position string `json:"position"`
	Color    string `json:"color"`
}

// ChartDatasets is the fixed two-axis layout of the dashboard chart.
var ChartDatasets = []Dataset{
	{Label: "MMI", AxisID: AxisMMI, Position: "left", Color: "rgba(34, 139, 34, 1)"},
	{Label: "Richter Magnitude", AxisID: AxisRichterMagnitude, Position: "right", Color: "rgba(255, 0, 255, 1)"},
}

// DeviceList is the device selector state: ids in first-observed order.
type DeviceList struct {
	Count    int      `json:"count"`
	Label    string   `json:"label"`
	Devices  []string `json:"devices"`
	Selected string   `json:"selected,omitempty"`
}

// CountLabel renders the device counter text, e.g. "1 device" or "3 devices".
func CountLabel(n int) string {
	if n == 1 {
		return "1 device"
	}
	return fmt.Sprintf("%d devices", n)
}
