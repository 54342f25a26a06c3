package assets

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	app "github.com/mark3748/hwtrack-go/cmd/api/app"
)

// resolveAssignmentLocation decides where an asset entering InUse is recorded
// when it has an assignee, based on the employee's work arrangement.
//
// Both branches currently resolve to Storage. They are kept separate on
// purpose: the remote-vs-onsite split is a policy hook (remote workers' assets
// staying in Storage for shipping) that product has not diverged yet. Do not
// collapse them without a product decision.
func resolveAssignmentLocation(ctx context.Context, db app.DB, employeeID uuid.UUID, fallback Location) Location {
	var workStyle string
	var homeAddress, currentAddress *string
	err := db.QueryRow(ctx,
		`select work_style, home_address, current_address from employees where id=$1`,
		employeeID).Scan(&workStyle, &homeAddress, &currentAddress)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fallback
		}
		return fallback
	}
	if workStyle == "Remote" && homeAddress != nil && *homeAddress != "" {
		return LocationStorage
	}
	if currentAddress != nil && *currentAddress != "" {
		return LocationStorage
	}
	return fallback
}
