// Package recap turns a finished game into shareable artifacts: a workbook of
// the round history and a score chart. Everything here is read-only over the
// final standings; nothing feeds back into game state.
package recap

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
)

const (
	roundsSheet = "Rounds"
	scoresSheet = "Scores"
)

// WriteWorkbook writes the round history and final scores as an xlsx
// workbook.
func WriteWorkbook(w io.Writer, history []gametypes.RoundHistoryEntry, players []roomtypes.Player) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", roundsSheet); err != nil {
		return fmt.Errorf("failed to rename rounds sheet: %w", err)
	}
	headers := []string{"Round", "Title", "Artist", "Winner", "Buzz (ms)", "Correct"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(roundsSheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for i, entry := range history {
		row := i + 2
		values := []any{entry.RoundNumber, entry.Title, entry.Artist, "", "", entry.WasCorrect}
		if entry.Winner != nil {
			values[3] = fmt.Sprintf("%s %s", entry.Winner.Avatar, entry.Winner.Nickname)
			values[4] = entry.Winner.BuzzMillis
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(roundsSheet, cell, value); err != nil {
				return fmt.Errorf("failed to write round %d: %w", entry.RoundNumber, err)
			}
		}
	}

	if _, err := f.NewSheet(scoresSheet); err != nil {
		return fmt.Errorf("failed to create scores sheet: %w", err)
	}
	if err := f.SetCellValue(scoresSheet, "A1", "Player"); err != nil {
		return fmt.Errorf("failed to write scores header: %w", err)
	}
	if err := f.SetCellValue(scoresSheet, "B1", "Score"); err != nil {
		return fmt.Errorf("failed to write scores header: %w", err)
	}
	for i, player := range players {
		row := i + 2
		cellA, _ := excelize.CoordinatesToCellName(1, row)
		cellB, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellValue(scoresSheet, cellA, player.Nickname); err != nil {
			return fmt.Errorf("failed to write player row: %w", err)
		}
		if err := f.SetCellValue(scoresSheet, cellB, int(player.Score)); err != nil {
			return fmt.Errorf("failed to write player row: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteScoreChart renders the final standings as a PNG bar chart.
func WriteScoreChart(w io.Writer, players []roomtypes.Player) error {
	if len(players) == 0 {
		return fmt.Errorf("no players to chart")
	}
	bars := make([]chart.Value, len(players))
	for i, player := range players {
		bars[i] = chart.Value{
			Label: player.Nickname,
			Value: float64(player.Score),
		}
	}
	graph := chart.BarChart{
		Title:    "Final scores",
		Width:    160 * len(players),
		Height:   512,
		BarWidth: 60,
		Bars:     bars,
		YAxis: chart.YAxis{
			ValueFormatter: chart.IntValueFormatter,
		},
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render score chart: %w", err)
	}
	return nil
}
