package models

// ContextPatch is the partial output of one pipeline stage. Fields left at
// their zero value are absent and leave the running context unchanged; map
// fields are shallow-merged, accumulator fields are appended, everything else
// is replaced wholesale.
type ContextPatch struct {
	Role       Role
	SessionID  string
	LocationID string

	Business *BusinessProfile
	Time     *TimeContext
	History  []Turn

	BusinessMemory  MemoryMap
	UserMemory      MemoryMap
	ChannelMemories map[string]MemoryMap

	Flags map[string]bool

	Instructions []Instruction
	Intent       *Intent

	ResourceResults []ResourceResult
	ExternalCalls   []ExternalCallResult
	Queries         []DataQuery
	Drafts          []Draft
	Autonomous      *AutonomousActionResult

	Reply   string
	Actions []Action
}

// Apply merges the patch into the context. Absent fields are untouched,
// snapshot maps and flags are shallow-merged key-wise, accumulators are
// appended to and never reset.
func (p ContextPatch) Apply(c *ProcessingContext) {
	if p.Role != "" {
		c.Role = p.Role
	}

	if p.SessionID != "" {
		c.SessionID = p.SessionID
	}

	if p.LocationID != "" {
		c.LocationID = p.LocationID
	}

	if p.Business != nil {
		c.Business = p.Business
	}

	if p.Time != nil {
		c.Time = *p.Time
	}

	if p.History != nil {
		c.History = p.History
	}

	c.BusinessMemory = mergeMemory(c.BusinessMemory, p.BusinessMemory)
	c.UserMemory = mergeMemory(c.UserMemory, p.UserMemory)

	if p.ChannelMemories != nil {
		if c.ChannelMemories == nil {
			c.ChannelMemories = make(map[string]MemoryMap, len(p.ChannelMemories))
		}

		for channel, snapshot := range p.ChannelMemories {
			c.ChannelMemories[channel] = mergeMemory(c.ChannelMemories[channel], snapshot)
		}
	}

	if p.Flags != nil {
		if c.Flags == nil {
			c.Flags = make(map[string]bool, len(p.Flags))
		}

		for name, value := range p.Flags {
			c.Flags[name] = value
		}
	}

	if p.Instructions != nil {
		c.Instructions = p.Instructions
	}

	if p.Intent != nil {
		c.Intent = p.Intent
	}

	c.ResourceResults = append(c.ResourceResults, p.ResourceResults...)
	c.ExternalCalls = append(c.ExternalCalls, p.ExternalCalls...)
	c.Queries = append(c.Queries, p.Queries...)
	c.Drafts = append(c.Drafts, p.Drafts...)

	if p.Autonomous != nil {
		c.Autonomous = p.Autonomous
	}

	if p.Reply != "" {
		c.Reply = p.Reply
	}

	if p.Actions != nil {
		c.Actions = p.Actions
	}
}

func mergeMemory(dst, src MemoryMap) MemoryMap {
	if src == nil {
		return dst
	}

	if dst == nil {
		dst = make(MemoryMap, len(src))
	}

	for k, v := range src {
		dst[k] = v
	}

	return dst
}
