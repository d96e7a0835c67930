package cart

import "sort"

// step applies one item event to the current row for its product.
// It returns the next row and whether that row should exist.
func step(row ViewRow, exists bool, e Event) (ViewRow, bool) {
	switch e.Type {
	case EventItemAdded:
		if !exists {
			row = ViewRow{TenantID: e.TenantID, UserID: e.UserID, ProductID: e.ProductID}
		}
		row.Quantity += e.Quantity
	case EventItemUpdated:
		if !exists {
			row = ViewRow{TenantID: e.TenantID, UserID: e.UserID, ProductID: e.ProductID}
		}
		row.Quantity = e.Quantity
	case EventItemRemoved:
		return ViewRow{}, false
	default:
		return row, exists
	}
	if row.Quantity <= 0 {
		return ViewRow{}, false
	}
	row.LastEventID = e.ID
	row.LastUpdated = e.CreatedAt
	return row, true
}

// Replay folds an ordered event log into the rows of the materialized cart:
// ADD accumulates, UPDATE overwrites, REMOVE deletes the row, CLEARED deletes all rows.
// Rows are returned sorted by product id.
func Replay(events []Event) []ViewRow {
	rows := make(map[string]ViewRow)
	for _, e := range events {
		if e.Type == EventCartCleared {
			clear(rows)
			continue
		}
		cur, ok := rows[e.ProductID]
		next, keep := step(cur, ok, e)
		if keep {
			rows[e.ProductID] = next
		} else {
			delete(rows, e.ProductID)
		}
	}

	out := make([]ViewRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sortRows(out)
	return out
}

func sortRows(rows []ViewRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductID < rows[j].ProductID })
}

// sameView compares two row sets ignoring order.
func sameView(a, b []ViewRow) bool {
	if len(a) != len(b) {
		return false
	}
	a = append([]ViewRow(nil), a...)
	b = append([]ViewRow(nil), b...)
	sortRows(a)
	sortRows(b)
	for i := range a {
		if a[i].ProductID != b[i].ProductID ||
			a[i].Quantity != b[i].Quantity ||
			a[i].LastEventID != b[i].LastEventID ||
			!a[i].LastUpdated.Equal(b[i].LastUpdated) {
			return false
		}
	}
	return true
}
