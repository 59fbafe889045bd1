package analytics

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const reportSheetName = "Monitoring Report"

// reportSessionHeader 会话明细表头
var reportSessionHeader = []string{
	"Session ID",
	"Status",
	"Start Time",
	"End Time",
	"Duration",
	"Device ID",
}

// ExportReport 生成用户监测报告 Excel 文件
// 顶部是汇总块，下方是会话明细列表
func (a *Aggregator) ExportReport(ctx context.Context, userID string) ([]byte, error) {
	summary, err := a.Summarize(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions, err := a.sessions.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	f := excelize.NewFile()
	// WriteTo 之前不能 Close

	index, err := f.NewSheet(reportSheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 汇总块
	summaryRows := [][2]interface{}{
		{"User ID", summary.UserID},
		{"Generated At", summary.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Total Sessions", summary.TotalSessions},
		{"Total Duration", summary.TotalDuration.Round(time.Second).String()},
		{"Emergencies", summary.EmergencyCount},
		{"Samples", summary.SampleCount},
		{"Mean Heart Rate", meanCell(summary.Means.HeartRate)},
		{"Mean Respiratory Rate", meanCell(summary.Means.RespiratoryRate)},
		{"Mean Oxygen Saturation", meanCell(summary.Means.OxygenSaturation)},
		{"Mean Systolic", meanCell(summary.Means.Systolic)},
		{"Mean Diastolic", meanCell(summary.Means.Diastolic)},
		{"Mean Temperature", meanCell(summary.Means.Temperature)},
	}
	for i, row := range summaryRows {
		labelCell := fmt.Sprintf("A%d", i+1)
		valueCell := fmt.Sprintf("B%d", i+1)
		if err := f.SetCellValue(reportSheetName, labelCell, row[0]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set summary label %s: %w", labelCell, err)
		}
		if err := f.SetCellStyle(reportSheetName, labelCell, labelCell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set summary style: %w", err)
		}
		if err := f.SetCellValue(reportSheetName, valueCell, row[1]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set summary value %s: %w", valueCell, err)
		}
	}

	// 会话明细表头
	headerRow := len(summaryRows) + 2
	for col, header := range reportSessionHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, headerRow)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(reportSheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(reportSheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	now := time.Now()
	for i, session := range sessions {
		row := headerRow + 1 + i
		endTime := ""
		if session.EndTime != nil {
			endTime = session.EndTime.Format("2006-01-02 15:04:05")
		}
		deviceID := ""
		if session.DeviceID != nil {
			deviceID = *session.DeviceID
		}
		values := []interface{}{
			session.ID,
			string(session.Status),
			session.StartTime.Format("2006-01-02 15:04:05"),
			endTime,
			session.Duration(now).Round(time.Second).String(),
			deviceID,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(reportSheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set session cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close report file: %w", err)
	}

	return buf.Bytes(), nil
}

// meanCell 均值单元格内容，无样本时显示 N/A
func meanCell(v *float64) interface{} {
	if v == nil {
		return "N/A"
	}
	return *v
}
