package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/store"
)

func (m *Manager) Projects() []store.Project {
	if m == nil || len(m.projects) == 0 {
		return nil
	}
	out := make([]store.Project, len(m.projects))
	copy(out, m.projects)
	return out
}

func (m *Manager) ActiveProject() (store.Project, bool) {
	if m == nil || m.activeProjectID == "" {
		return store.Project{}, false
	}
	for _, p := range m.projects {
		if p.ID == m.activeProjectID {
			return p, true
		}
	}
	return store.Project{}, false
}

// ResolveProjectChat handles a create_project_chat command silently: find
// the project by id hint or case-insensitive name, create it when absent,
// make it active, and switch to its mapped session (allocating one when
// no mapping exists). Reports the project and whether it was created.
func (m *Manager) ResolveProjectChat(ctx context.Context, cmd protocol.Command) (store.Project, bool, error) {
	if m == nil {
		return store.Project{}, false, errors.New("session manager is nil")
	}
	name := strings.TrimSpace(cmd.ProjectName)
	idHint := strings.TrimSpace(cmd.ProjectID)
	if name == "" && idHint == "" {
		return store.Project{}, false, errors.New("project_name or project_id is required")
	}

	var proj store.Project
	found := false
	if idHint != "" {
		for _, p := range m.projects {
			if p.ID == idHint {
				proj = p
				found = true
				break
			}
		}
	}
	if !found && name != "" {
		for _, p := range m.projects {
			if strings.EqualFold(strings.TrimSpace(p.Name), name) {
				proj = p
				found = true
				break
			}
		}
	}

	created := false
	if !found {
		display := name
		if display == "" {
			display = idHint
		}
		proj = store.Project{
			ID:        idHint,
			Name:      display,
			CreatedAt: time.Now().UTC(),
		}
		if proj.ID == "" {
			proj.ID = protocol.NewID("proj")
		}
		m.projects = append(m.projects, proj)
		created = true
		m.logf("session: created project id=%s name=%s", proj.ID, proj.Name)
		if m.cache != nil {
			m.cache.SaveProjects(ctx, m.projects)
		}
	}

	if err := m.activateProject(ctx, proj); err != nil {
		return store.Project{}, created, err
	}
	return proj, created, nil
}

// SelectProject switches to a known project, resuming its mapped session
// or allocating a fresh one.
func (m *Manager) SelectProject(ctx context.Context, projectID string) (store.Project, error) {
	if m == nil {
		return store.Project{}, errors.New("session manager is nil")
	}
	id := strings.TrimSpace(projectID)
	for _, p := range m.projects {
		if p.ID == id {
			if err := m.activateProject(ctx, p); err != nil {
				return store.Project{}, err
			}
			return p, nil
		}
	}
	return store.Project{}, errors.New("unknown project: " + id)
}

func (m *Manager) activateProject(ctx context.Context, proj store.Project) error {
	m.activeProjectID = proj.ID

	sessionID := ""
	if m.cache != nil {
		sessionID = m.cache.SessionForProject(ctx, proj.ID)
	}
	if sessionID == "" {
		sessionID = protocol.NewID("sess")
		m.logf("session: allocated %s for project %s", sessionID, proj.ID)
	}
	if m.cache != nil {
		m.cache.SaveActiveSession(ctx, proj.ID, sessionID)
	}
	m.Switch(sessionID)
	return nil
}
