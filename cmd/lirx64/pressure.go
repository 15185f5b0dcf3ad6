package main

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"

	"github.com/colorfulnotion/lirx64/codegen"
)

// pressureChart plots live values per position for one function.
func pressureChart(p codegen.Pressure) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "@" + p.Func,
			Subtitle: fmt.Sprintf("peak %d general purpose, %d vector", p.MaxGP, p.MaxVector),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "position"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "live values"}),
	)
	xs := make([]int, len(p.PerPosition))
	ys := make([]opts.LineData, len(p.PerPosition))
	for i, n := range p.PerPosition {
		xs[i] = i
		ys[i] = opts.LineData{Value: n}
	}
	line.SetXAxis(xs).AddSeries("live", ys)
	return line
}

func newPressureCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pressure <module.lir>",
		Short: "Chart register pressure per function as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readModule(args[0])
			if err != nil {
				return err
			}
			c, err := codegen.NewCompiler(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			page := components.NewPage()
			page.PageTitle = "register pressure"
			for _, fn := range m.Funcs {
				p := c.Pressure(fn)
				fmt.Printf("@%-24s gp %2d  vector %2d  positions %d\n", p.Func, p.MaxGP, p.MaxVector, len(p.PerPosition))
				page.AddCharts(pressureChart(p))
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := page.Render(f); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "pressure.html", "output HTML file")
	return cmd
}
