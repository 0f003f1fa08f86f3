package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/yourusername/racing-value/internal/models"
	"github.com/yourusername/racing-value/internal/service"
)

// renderReport prints one table per race. Odds are shown to 2 places, probabilities and EVs to 3.
func renderReport(w io.Writer, report *service.RunReport) error {
	fmt.Fprintf(w, "Value bets for %s (%s, %s)  run %s\n", report.Date, report.Country, report.RaceType, report.RunID)
	if report.Notice != "" {
		fmt.Fprintf(w, "%s\n", report.Notice)
	}

	for _, race := range report.Races {
		fmt.Fprintf(w, "\n%s\n", raceHeading(race.Race))
		if race.Notice != "" {
			fmt.Fprintf(w, "  %s\n", race.Notice)
		}
		if len(race.Results) == 0 {
			continue
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Runner\tOdds\tWin Prob\tWin EV\tPlace Odds\tPlace Prob\tPlace EV\tPlaces\tBest Bet\tBest EV\t")
		for _, r := range race.Results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t\n",
				r.Runner.Name,
				round(r.Runner.WinOdds, 2),
				round(r.AdjustedWinProb, 3),
				round(r.WinEV, 3),
				round(r.PlaceOdds, 2),
				round(r.PlaceProb, 3),
				round(r.PlaceEV, 3),
				r.Places,
				bestBet(r),
				round(r.BestEV, 3),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\n%d value bet(s)\n", report.ValueBets)
	return nil
}

func raceHeading(r models.Race) string {
	heading := r.Label()
	if r.Type != "" {
		heading += " (" + string(r.Type) + ")"
	}
	return heading
}

func bestBet(r models.ValueBetResult) string {
	if r.InvalidOdds {
		return "invalid odds"
	}
	return string(r.BestBetType)
}

func round(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
