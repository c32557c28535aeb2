package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/balltrack/internal/cycler"
	"github.com/banshee-data/balltrack/internal/geometry"
	"github.com/banshee-data/balltrack/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

func scatterPoint(p geometry.Point2, extra ...interface{}) opts.ScatterData {
	return opts.ScatterData{Value: append([]interface{}{p.X, p.Y}, extra...)}
}

// renderChart draws the field extent, detections, hypotheses coloured by
// validity, the reported ball and removed positions of one cycle.
func (ws *WebServer) renderChart(record cycler.Record) (*bytes.Buffer, error) {
	field := ws.params.Field
	halfX := field.Length/2 + field.BorderStripWidth
	halfY := field.Width/2 + field.BorderStripWidth
	if halfX <= 0 {
		halfX = 1
	}
	if halfY <= 0 {
		halfY = 1
	}

	var detections []opts.ScatterData
	for _, batch := range record.Input.Measurements {
		for _, d := range batch.Detections {
			detections = append(detections, scatterPoint(d))
		}
	}

	maxValidity := ws.params.ValidityOutputThreshold
	hypotheses := make([]opts.ScatterData, 0, len(record.Output.Hypotheses))
	for _, v := range ws.hypothesisViews(record.Output) {
		hypotheses = append(hypotheses, scatterPoint(v.Position, v.Validity))
		if v.Validity > maxValidity {
			maxValidity = v.Validity
		}
	}
	if maxValidity <= 0 {
		maxValidity = 1
	}

	var ball []opts.ScatterData
	if b := record.Output.BallPosition; b != nil {
		ball = append(ball, scatterPoint(b.Position))
	}
	removed := make([]opts.ScatterData, 0, len(record.Output.RemovedBallPositions))
	for _, p := range record.Output.RemovedBallPositions {
		removed = append(removed, scatterPoint(p))
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Ball filter", Theme: "dark", Width: "1000px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Ball hypotheses",
			Subtitle: fmt.Sprintf("cycle=%d hypotheses=%d detections=%d", record.Index, len(hypotheses), len(detections)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -halfX, Max: halfX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -halfY, Max: halfY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxValidity),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)

	scatter.AddSeries("detections", detections, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("hypotheses", hypotheses, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	scatter.AddSeries("ball", ball, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 18}))
	scatter.AddSeries("removed", removed, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (ws *WebServer) handleChart(w http.ResponseWriter, r *http.Request) {
	record, ok := ws.latestRecord(w, r)
	if !ok {
		return
	}
	buf, err := ws.renderChart(record)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
