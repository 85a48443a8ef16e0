package main

import (
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/theme"
)

var (
	headerCell = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Padding(0, 1)
	cell       = lipgloss.NewStyle().Padding(0, 1)
)

// renderTaskTable renders tasks as a bordered table for non-interactive output.
func renderTaskTable(tasks []model.Task, now time.Time) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID,
			t.Title,
			string(t.Status),
			string(t.Priority),
			assigneeName(t),
			dueLabel(t, now),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.DimmedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			t := tasks[row]
			switch col {
			case 2:
				return cell.Foreground(theme.StatusStyle(t.Status).GetForeground())
			case 3:
				return cell.Foreground(theme.PriorityStyle(t.Priority).GetForeground())
			case 5:
				if t.IsOverdue(now) {
					return cell.Foreground(theme.OverdueStyle.GetForeground())
				}
			}
			return cell
		}).
		Headers("ID", "TITLE", "STATUS", "PRIORITY", "ASSIGNEE", "DUE").
		Rows(rows...).
		String()
}

func renderUserTable(users []model.User) string {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.ID, u.Name, u.Email})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.DimmedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return cell
		}).
		Headers("ID", "NAME", "EMAIL").
		Rows(rows...).
		String()
}

func assigneeName(t model.Task) string {
	if t.AssignedTo == nil {
		return "-"
	}
	return t.AssignedTo.DisplayName()
}

func dueLabel(t model.Task, now time.Time) string {
	if t.DueDate == nil {
		return "-"
	}
	if t.IsOverdue(now) {
		return t.DueDate.Format(dateLayout) + " (overdue)"
	}
	return t.DueDate.Format(dateLayout)
}
