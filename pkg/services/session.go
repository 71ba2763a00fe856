// Package services hosts the editing-session layer between the HTTP
// surface and the execution core: one session per workflow, owning the
// graph state and a dedicated run controller.
package services

import (
	"fmt"
	"sync"

	"github.com/xde-mcp/sim-sub005/pkg/execution"
	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// Session is one open editing session: the authoritative graph plus the
// controller that runs it. Graph replacement and reads are serialized;
// the controller does its own run-level locking.
type Session struct {
	WorkflowID string

	mu         sync.RWMutex
	state      *models.WorkflowState
	controller *execution.Controller
}

// State returns the session's current graph.
func (s *Session) State() *models.WorkflowState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// SetState replaces the session's graph wholesale.
func (s *Session) SetState(state *models.WorkflowState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
}

// Controller returns the session's run controller.
func (s *Session) Controller() *execution.Controller {
	return s.controller
}

// ControllerFactory builds a controller for a new session. Each session
// gets its own executor so concurrent sessions never share run state.
type ControllerFactory func(workflowID string) *execution.Controller

// SessionManager tracks open sessions by workflow id.
type SessionManager struct {
	factory ControllerFactory

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager(factory ControllerFactory) *SessionManager {
	return &SessionManager{
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for the workflow, creating it with an empty
// graph when none exists yet.
func (m *SessionManager) Open(workflowID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[workflowID]; ok {
		return session
	}

	session := &Session{
		WorkflowID: workflowID,
		state:      models.NewWorkflowState(workflowID),
		controller: m.factory(workflowID),
	}
	m.sessions[workflowID] = session

	return session
}

// Get returns an already-open session.
func (m *SessionManager) Get(workflowID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow not found: %s", workflowID)
	}

	return session, nil
}

// Close drops the session. The stored snapshot survives; only the
// in-memory editing state goes away.
func (m *SessionManager) Close(workflowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, workflowID)
}
