// Package keyboards implements the keyboard-facing commands: per-definition
// usage statistics and build task submission.
package keyboards

import (
	"context"
	"fmt"
	"time"

	"github.com/remap-keys/remap-backend/internal/db/models"
	"github.com/remap-keys/remap-backend/internal/rpc"
	"github.com/remap-keys/remap-backend/internal/taskqueue"
)

// statisticsWindowDays is the length of the usage statistics window. The
// series spans from 90 days ago through today, inclusive on both ends, so it
// always holds 91 daily buckets.
const statisticsWindowDays = 90

// uniqueUserCountThreshold is the privacy floor for statistics: with fewer
// distinct users the series would identify individual activity, so all
// buckets are reported as zero.
const uniqueUserCountThreshold = 2

// DefinitionStore is the keyboard definition access the commands need.
type DefinitionStore interface {
	GetByID(ctx context.Context, id string) (*models.KeyboardDefinition, error)
}

// MembershipStore checks organization membership for organization-authored
// definitions.
type MembershipStore interface {
	IsMember(ctx context.Context, orgID, uid string) (bool, error)
}

// OperationLogStore reads the frontend operation logs aggregated into
// statistics.
type OperationLogStore interface {
	ListForDefinitionSince(ctx context.Context, definitionID string, since time.Time) ([]*models.OperationLog, error)
}

// TaskStore is the build task access the commands need.
type TaskStore interface {
	GetByID(ctx context.Context, id string) (*models.BuildTask, error)
	HasUnfinished(ctx context.Context, uid string) (bool, error)
	CreateExclusive(ctx context.Context, task *models.BuildTask) error
}

// Commands holds the keyboards command handlers and their dependencies.
type Commands struct {
	definitions DefinitionStore
	members     MembershipStore
	logs        OperationLogStore
	tasks       TaskStore
	queue       taskqueue.Enqueuer

	isUnfinishedConflict func(error) bool
	now                  func() time.Time
}

// NewCommands creates the keyboards command set. isUnfinishedConflict reports
// whether a CreateExclusive error means another unfinished task won the race.
func NewCommands(definitions DefinitionStore, members MembershipStore, logs OperationLogStore,
	tasks TaskStore, queue taskqueue.Enqueuer, isUnfinishedConflict func(error) bool) *Commands {
	return &Commands{
		definitions:          definitions,
		members:              members,
		logs:                 logs,
		tasks:                tasks,
		queue:                queue,
		isUnfinishedConflict: isUnfinishedConflict,
		now:                  time.Now,
	}
}

// Register binds the keyboards commands to the dispatcher.
func (c *Commands) Register(d *rpc.Dispatcher) {
	auth := rpc.RequireAuthentication()

	d.Register("createKeyboardStatistics", c.createKeyboardStatistics,
		auth, rpc.RequireFields("keyboardDefinitionId"))
	d.Register("createFirmwareBuildingTask", c.createFirmwareBuildingTask,
		auth, rpc.RequireFields("taskId"))
	d.Register("createWorkbenchBuildingTask", c.createWorkbenchBuildingTask,
		auth, rpc.RequireFields("projectId"))
}

// checkDefinitionOwnership verifies the caller may see the definition's
// statistics: direct authorship, or membership in the authoring organization.
// Every failure uses the definition-not-found code so callers cannot probe
// for the existence of other users' definitions.
func (c *Commands) checkDefinitionOwnership(ctx context.Context, uid, definitionID string) (*rpc.Result, error) {
	def, err := c.definitions.GetByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return rpc.Fail(rpc.CodeDefinitionNotFound,
			fmt.Sprintf("The keyboard definition %s is not found.", definitionID)), nil
	}

	if def.AuthorType == models.AuthorTypeOrganization {
		orgID := ""
		if def.OrganizationID != nil {
			orgID = *def.OrganizationID
		}
		member, err := c.members.IsMember(ctx, orgID, uid)
		if err != nil {
			return nil, err
		}
		if !member {
			return rpc.Fail(rpc.CodeDefinitionNotFound,
				fmt.Sprintf("The user is not a member of the organization %s.", orgID)), nil
		}
	} else if def.AuthorUID != uid {
		return rpc.Fail(rpc.CodeDefinitionNotFound,
			fmt.Sprintf("The user is not an owner of the keyboard definition %s.", definitionID)), nil
	}
	return nil, nil
}

func (c *Commands) createKeyboardStatistics(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	definitionID, _ := req.Data.String("keyboardDefinitionId")
	uid := req.Caller.UID

	if failure, err := c.checkDefinitionOwnership(ctx, uid, definitionID); failure != nil || err != nil {
		return failure, err
	}

	now := c.now().UTC()
	since := now.AddDate(0, 0, -statisticsWindowDays)
	logs, err := c.logs.ListForDefinitionSince(ctx, definitionID, since)
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, statisticsWindowDays+1)
	for i := 0; i <= statisticsWindowDays; i++ {
		labels = append(labels, since.AddDate(0, 0, i).Format(time.DateOnly))
	}
	openCounts := make(map[string]int, len(labels))
	flashCounts := make(map[string]int, len(labels))
	for _, label := range labels {
		openCounts[label] = 0
		flashCounts[label] = 0
	}

	uniqueUsers := map[string]struct{}{}
	for _, log := range logs {
		uniqueUsers[log.UID] = struct{}{}
	}

	// Below the privacy floor every bucket stays zero: the activity of one
	// or two users must not be reconstructable from the series.
	if len(uniqueUsers) >= uniqueUserCountThreshold {
		for _, log := range logs {
			date := log.CreatedAt.UTC().Format(time.DateOnly)
			if _, inWindow := openCounts[date]; !inWindow {
				continue
			}
			switch log.Operation {
			case models.OperationConfigureOpen:
				openCounts[date]++
			case models.OperationConfigureFlash:
				flashCounts[date]++
			}
		}
	}

	openValues := make([]int, len(labels))
	flashValues := make([]int, len(labels))
	for i, label := range labels {
		openValues[i] = openCounts[label]
		flashValues[i] = flashCounts[label]
	}

	return rpc.OK(map[string]any{
		"statistics": map[string]any{
			"counts_of_opening_keyboard": map[string]any{"labels": labels, "values": openValues},
			"counts_of_flashing_keymap":  map[string]any{"labels": labels, "values": flashValues},
		},
	}), nil
}

func (c *Commands) createFirmwareBuildingTask(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	taskID, _ := req.Data.String("taskId")
	uid := req.Caller.UID

	unfinished, err := c.tasks.HasUnfinished(ctx, uid)
	if err != nil {
		return nil, err
	}
	if unfinished {
		return rpc.Fail(rpc.CodeUncompletedTaskExists, "The uncompleted task you registered exists."), nil
	}

	task, err := c.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return rpc.Fail(rpc.CodeTaskNotFound, fmt.Sprintf("The task [%s] is not found (1)", taskID)), nil
	}
	if task.UID != uid {
		return rpc.Fail(rpc.CodeTaskNotFound, fmt.Sprintf("The task [%s] is not found (2)", taskID)), nil
	}

	if err := c.queue.EnqueueBuildTask(ctx, taskqueue.KindFirmware, uid, taskID); err != nil {
		return nil, err
	}
	return rpc.OK(nil), nil
}

func (c *Commands) createWorkbenchBuildingTask(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	projectID, _ := req.Data.String("projectId")
	uid := req.Caller.UID

	// Fast path only; the store's exclusive insert is the authoritative
	// guard under concurrent submissions.
	unfinished, err := c.tasks.HasUnfinished(ctx, uid)
	if err != nil {
		return nil, err
	}
	if unfinished {
		return rpc.Fail(rpc.CodeUncompletedTaskExists, "The uncompleted task you registered exists."), nil
	}

	task := &models.BuildTask{UID: uid, ProjectID: &projectID}
	if err := c.tasks.CreateExclusive(ctx, task); err != nil {
		if c.isUnfinishedConflict(err) {
			return rpc.Fail(rpc.CodeUncompletedTaskExists, "The uncompleted task you registered exists."), nil
		}
		return nil, err
	}

	if err := c.queue.EnqueueBuildTask(ctx, taskqueue.KindWorkbench, uid, task.ID); err != nil {
		return nil, err
	}
	return rpc.OK(nil), nil
}
