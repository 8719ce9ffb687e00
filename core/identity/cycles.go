package identity

import (
	"fmt"
	"sort"

	"github.com/embermind/engram/core/graph"
)

// Cycle statuses.
const (
	CycleStatusPlanning  = "planning"
	CycleStatusActive    = "active"
	CycleStatusCompleted = "completed"
	CycleStatusAbandoned = "abandoned"
)

// CycleSpec describes a new self-assigned work cycle.
type CycleSpec struct {
	Name      string
	Objective string
	Type      string // "research", "reflection", "maintenance"
	Priority  int    // 1..10, higher first
	GoalID    string
	ProjectID string
	Context   string
}

// CreateCycle records a self-assigned cycle of work. The persona initiates
// it; when goal or project ids are set the cycle is linked to them.
func (s *Service) CreateCycle(spec CycleSpec) (*graph.Node, error) {
	if spec.Name == "" || spec.Objective == "" {
		return nil, fmt.Errorf("%w: cycle needs a name and objective", graph.ErrValidation)
	}
	if spec.Type == "" {
		spec.Type = "research"
	}
	if spec.Priority == 0 {
		spec.Priority = 5
	}

	props := graph.Properties{
		"objective":       spec.Objective,
		"cycle_type":      spec.Type,
		"status":          CycleStatusPlanning,
		"priority":        spec.Priority,
		"estimated_tasks": 0,
		"tasks_completed": 0,
		"insights_count":  0,
	}
	if spec.Context != "" {
		props["context"] = spec.Context
	}

	cycle, err := s.store.CreateNode(graph.NodeCycle, spec.Name, props)
	if err != nil {
		return nil, fmt.Errorf("create cycle: %w", err)
	}

	if persona, err := s.persona(); err == nil {
		if _, err := s.store.CreateRelationship(persona.ID, cycle.ID, graph.RelInitiated, nil); err != nil {
			return nil, err
		}
	}
	if spec.GoalID != "" {
		if _, err := s.store.CreateRelationship(cycle.ID, spec.GoalID, graph.RelWorksToward, nil); err != nil {
			return nil, err
		}
	}
	if spec.ProjectID != "" {
		if _, err := s.store.CreateRelationship(cycle.ID, spec.ProjectID, graph.RelPartOf, nil); err != nil {
			return nil, err
		}
	}
	return cycle, nil
}

// GetActiveCycles returns planning and active cycles, highest priority
// first, newest first within a priority.
func (s *Service) GetActiveCycles(limit int) ([]graph.Node, error) {
	if limit <= 0 {
		limit = 10
	}

	planning, err := s.store.FindNodes(graph.NodeCycle, graph.Properties{"status": CycleStatusPlanning}, limit)
	if err != nil {
		return nil, err
	}
	active, err := s.store.FindNodes(graph.NodeCycle, graph.Properties{"status": CycleStatusActive}, limit)
	if err != nil {
		return nil, err
	}

	cycles := append(active, planning...)
	sort.SliceStable(cycles, func(i, j int) bool {
		pi, pj := cycles[i].Props.Int("priority"), cycles[j].Props.Int("priority")
		if pi != pj {
			return pi > pj
		}
		return cycles[i].CreatedAt.After(cycles[j].CreatedAt)
	})
	if len(cycles) > limit {
		cycles = cycles[:limit]
	}
	return cycles, nil
}

// UpdateCycleStatus moves a cycle through its lifecycle. Completed cycles
// get a completed_at stamp.
func (s *Service) UpdateCycleStatus(cycleID, status, reason string) (bool, error) {
	props := graph.Properties{"status": status}
	if reason != "" {
		props["status_reason"] = reason
	}
	if status == CycleStatusCompleted {
		props["completed_at"] = nowStamp()
	}
	return s.store.UpdateNode(cycleID, props)
}

// AddTaskToCycle creates a task inside a cycle and bumps the cycle's
// estimated task count.
func (s *Service) AddTaskToCycle(cycleID, description string, priority, estimatedMinutes int) (*graph.Node, error) {
	cycle, err := s.store.GetNode(cycleID)
	if err != nil {
		return nil, err
	}
	if priority == 0 {
		priority = 5
	}

	name := description
	if len(name) > 100 {
		name = name[:100]
	}
	props := graph.Properties{
		"description": description,
		"status":      "pending",
		"priority":    priority,
	}
	if estimatedMinutes > 0 {
		props["estimated_minutes"] = estimatedMinutes
	}

	task, err := s.store.CreateNode(graph.NodeTask, name, props)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if _, err := s.store.CreateRelationship(cycleID, task.ID, graph.RelContains, nil); err != nil {
		return nil, err
	}
	if _, err := s.store.UpdateNode(cycleID, graph.Properties{
		"estimated_tasks": cycle.Props.Int("estimated_tasks") + 1,
	}); err != nil {
		return nil, err
	}
	return task, nil
}

// CompleteTask marks a task done and bumps the parent cycle's completion
// counter. Returns false when the task does not exist.
func (s *Service) CompleteTask(taskID string) (bool, error) {
	ok, err := s.store.UpdateNode(taskID, graph.Properties{
		"status":       "completed",
		"completed_at": nowStamp(),
	})
	if err != nil || !ok {
		return ok, err
	}

	parents, err := s.store.GetRelated(taskID, graph.RelContains, graph.DirectionIn, graph.NodeCycle, 1)
	if err != nil {
		return true, err
	}
	if len(parents) > 0 {
		cycle := parents[0]
		if _, err := s.store.UpdateNode(cycle.ID, graph.Properties{
			"tasks_completed": cycle.Props.Int("tasks_completed") + 1,
		}); err != nil {
			return true, err
		}
	}
	return true, nil
}

// AddInsightToCycle stores an insight discovered during a cycle, links it
// with INFORMS, and bumps the cycle's insight counter.
func (s *Service) AddInsightToCycle(cycleID, insight, sourceType string, confidence float64) (*graph.Node, error) {
	cycle, err := s.store.GetNode(cycleID)
	if err != nil {
		return nil, err
	}
	if sourceType == "" {
		sourceType = "research"
	}

	node, err := s.RecordInsight(insight, sourceType, confidence)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.CreateRelationship(node.ID, cycleID, graph.RelInforms, nil); err != nil {
		return nil, err
	}
	if _, err := s.store.UpdateNode(cycleID, graph.Properties{
		"insights_count": cycle.Props.Int("insights_count") + 1,
	}); err != nil {
		return nil, err
	}
	return node, nil
}

// CreateProject creates a project owned by the user. Life areas are
// permanent always-active projects like Family or Health.
func (s *Service) CreateProject(name, description, category string, isLifeArea bool) (*graph.Node, error) {
	if category == "" {
		category = "general"
	}

	project, err := s.store.CreateNode(graph.NodeProject, name, graph.Properties{
		"description":  description,
		"category":     category,
		"status":       "active",
		"is_life_area": isLifeArea,
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	user, err := s.GetUser()
	if err != nil {
		return nil, err
	}
	if user != nil {
		if _, err := s.store.CreateRelationship(user.ID, project.ID, graph.RelOwns, nil); err != nil {
			return nil, err
		}
	}
	return project, nil
}

// AddPersonToProject links a person into a project, with an optional role
// stored on the edge.
func (s *Service) AddPersonToProject(personID, projectID, role string) (bool, error) {
	var props graph.Properties
	if role != "" {
		props = graph.Properties{"role": role}
	}
	return s.store.CreateRelationship(personID, projectID, graph.RelMemberOf, props)
}

// GetUserProjects returns the user's projects, newest first, optionally
// filtered by category.
func (s *Service) GetUserProjects(category string, limit int) ([]graph.Related, error) {
	user, err := s.GetUser()
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	projects, err := s.store.GetRelated(user.ID, graph.RelOwns, graph.DirectionOut, graph.NodeProject, limit)
	if err != nil {
		return nil, err
	}
	if category == "" {
		return projects, nil
	}

	filtered := projects[:0]
	for _, p := range projects {
		if p.Props.String("category") == category {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// GetProjectMembers returns the people linked into a project through
// MEMBER_OF or COLLABORATES_ON edges. The role, when one was recorded,
// rides on RelProps.
func (s *Service) GetProjectMembers(projectID string) ([]graph.Related, error) {
	members, err := s.store.GetRelated(projectID, graph.RelMemberOf, graph.DirectionIn, graph.NodePerson, 100)
	if err != nil {
		return nil, err
	}
	collaborators, err := s.store.GetRelated(projectID, graph.RelCollaboratesOn, graph.DirectionIn, graph.NodePerson, 100)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(members))
	for _, m := range members {
		seen[m.ID] = true
	}
	for _, c := range collaborators {
		if !seen[c.ID] {
			members = append(members, c)
		}
	}
	return members, nil
}

// GetProjectSources returns the documents a project draws on via
// USES_SOURCE edges.
func (s *Service) GetProjectSources(projectID string) ([]graph.Related, error) {
	return s.store.GetRelated(projectID, graph.RelUsesSource, graph.DirectionOut, graph.NodeDocument, 100)
}

// GetLifeAreas returns the user's life area projects.
func (s *Service) GetLifeAreas() ([]graph.Related, error) {
	projects, err := s.GetUserProjects("", 100)
	if err != nil {
		return nil, err
	}

	areas := projects[:0]
	for _, p := range projects {
		if p.Props.Bool("is_life_area") {
			areas = append(areas, p)
		}
	}
	return areas, nil
}

// CreateGoal creates a goal the user is interested in.
func (s *Service) CreateGoal(name, description, timeframe string, successCriteria []string) (*graph.Node, error) {
	props := graph.Properties{
		"description": description,
		"status":      "active",
		"progress":    0,
	}
	if timeframe != "" {
		props["timeframe"] = timeframe
	}
	if len(successCriteria) > 0 {
		props["success_criteria"] = successCriteria
	}

	goal, err := s.store.CreateNode(graph.NodeGoal, name, props)
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}

	user, err := s.GetUser()
	if err != nil {
		return nil, err
	}
	if user != nil {
		if _, err := s.store.CreateRelationship(user.ID, goal.ID, graph.RelInterestedIn, nil); err != nil {
			return nil, err
		}
	}
	return goal, nil
}

// GetUserGoals returns the user's goals, newest first, optionally filtered
// by timeframe.
func (s *Service) GetUserGoals(timeframe string) ([]graph.Related, error) {
	user, err := s.GetUser()
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	goals, err := s.store.GetRelated(user.ID, graph.RelInterestedIn, graph.DirectionOut, graph.NodeGoal, 50)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		return goals, nil
	}

	filtered := goals[:0]
	for _, g := range goals {
		if g.Props.String("timeframe") == timeframe {
			filtered = append(filtered, g)
		}
	}
	return filtered, nil
}
