package auth

// Snapshot is the read-only view of the coordinator state handed to consumers.
// Pointer fields are private copies; mutating them does not affect the coordinator.
type Snapshot struct {
	Identity    *Identity `json:"identity"`
	Session     *Session  `json:"session"`
	Profile     *Profile  `json:"profile"`
	Role        *Role     `json:"role"`
	Loading     bool      `json:"loading"`
	Initialized bool      `json:"initialized"`
	Error       string    `json:"error,omitempty"`
}

// Authenticated reports whether an identity is present.
func (s Snapshot) Authenticated() bool { return s.Identity != nil }

// IsAuthor reports whether the resolved role is author.
func (s Snapshot) IsAuthor() bool { return s.Role != nil && *s.Role == RoleAuthor }

// IsSuperAdmin reports whether the resolved role is super_admin.
func (s Snapshot) IsSuperAdmin() bool { return s.Role != nil && *s.Role == RoleSuperAdmin }

// UserID returns the identity id or "" when anonymous.
func (s Snapshot) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

// Clone returns a deep copy so callers cannot alias coordinator state.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Identity != nil {
		id := s.Identity.clone()
		out.Identity = &id
	}
	if s.Session != nil {
		sess := s.Session.Clone()
		out.Session = &sess
	}
	if s.Profile != nil {
		p := *s.Profile
		if s.Profile.LastLogin != nil {
			t := *s.Profile.LastLogin
			p.LastLogin = &t
		}
		out.Profile = &p
	}
	if s.Role != nil {
		r := *s.Role
		out.Role = &r
	}
	return out
}

func (i Identity) clone() Identity {
	out := i
	if i.Metadata != nil {
		out.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Clone returns a copy of s that shares no maps with it.
func (s Session) Clone() Session {
	out := s
	out.Identity = s.Identity.clone()
	return out
}
