// Package command provides the text command system shared by the API and
// the dashboard
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/ticketprint/internal/service"
)

// Executor executes commands
type Executor struct {
	svc *service.Service
}

// NewExecutor creates a new command executor
func NewExecutor(svc *service.Service) *Executor {
	return &Executor{svc: svc}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func failure(err error) *Result {
	return &Result{
		Success: false,
		Code:    service.Code(err),
		Error:   err.Error(),
	}
}

func usage(text string) *Result {
	return &Result{
		Success: false,
		Code:    service.CodeMalformedInput,
		Error:   "usage: " + text,
	}
}

// Execute executes a command string and returns a result. Permission
// requests and prints block until done or ctx ends.
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return &Result{
			Success: false,
			Code:    service.CodeMalformedInput,
			Error:   "empty command",
		}
	}

	command := parts[0]
	args := parts[1:]

	switch command {
	case "permission":
		return e.handlePermission(ctx, args)
	case "connect":
		return e.handleConnect(ctx)
	case "disconnect":
		return e.handleDisconnect()
	case "status":
		return e.handleStatus(ctx)
	case "print":
		return e.handlePrint(ctx, args)
	case "device":
		return e.handleDevice(ctx, args)
	case "job":
		return e.handleJob(args)
	case "help":
		return e.handleHelp()
	default:
		return &Result{
			Success: false,
			Code:    service.CodeMalformedInput,
			Error:   fmt.Sprintf("unknown command: %s. Type 'help' for available commands", command),
		}
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if (char == ' ' || char == '\t') && !inQuotes {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
