package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
	"github.com/mamadbah2/farmtrace/internal/service/reporting"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not yet support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

// HelpText lists the chat commands understood by the dispatcher.
const HelpText = "Commands:\n" +
	"/cost <batch id> - cost per kg of a lineage\n" +
	"/cost <batch id> tree - stage by stage breakdown\n" +
	"/help - this message"

// CostReporter computes lineage cost reports.
type CostReporter interface {
	CostLineage(ctx context.Context, rootID string) (*models.CostReport, error)
}

// Dispatcher executes parsed commands.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	costs  CostReporter
	logger *zap.Logger
}

// NewService constructs a command dispatcher.
func NewService(costs CostReporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{costs: costs, logger: logger}
}

// HandleCommand runs the command and returns the reply text.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case models.CommandCost:
		return s.handleCost(ctx, cmd)
	case models.CommandHelp:
		return HelpText, nil
	default:
		return "", ErrUnsupportedCommand
	}
}

func (s *Service) handleCost(ctx context.Context, cmd models.Command) (string, error) {
	if len(cmd.Args) == 0 || len(cmd.Args) > 2 {
		return "", ErrInvalidArguments
	}

	detailed := false
	if len(cmd.Args) == 2 {
		switch strings.ToLower(cmd.Args[1]) {
		case "tree", "detalle", "detail":
			detailed = true
		default:
			return "", ErrInvalidArguments
		}
	}

	rootID := cmd.Args[0]
	report, err := s.costs.CostLineage(ctx, rootID)
	if err != nil {
		if errors.Is(err, models.ErrBatchNotFound) {
			return fmt.Sprintf("No batch found with id %s.", rootID), nil
		}
		return "", fmt.Errorf("cost lineage %s: %w", rootID, err)
	}

	if detailed {
		return reporting.RenderTree(report), nil
	}
	return reporting.RenderSummary(report), nil
}
