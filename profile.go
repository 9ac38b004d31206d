package identity

import "slices"

// Profile field names reported by ProfileEngine.Missing, in report order.
const (
	FieldFamilyName = "family_name"
	FieldGivenName  = "given_name"
	FieldLevel      = "level"
	FieldTrack      = "track"
)

var (
	// DefaultLevels are the accepted schooling levels
	DefaultLevels = []string{"collège", "lycée"}
	// DefaultTracks are the accepted classes within a level
	DefaultTracks = []string{"6ème", "5ème", "4ème", "3ème", "2nd", "1ère", "Terminale"}
)

// ProfileEngine derives profile completeness from an identity
type ProfileEngine struct {
	levels []string
	tracks []string
}

// NewProfileEngine builds an engine for the given enumerations. Empty
// sets fall back to DefaultLevels and DefaultTracks.
func NewProfileEngine(levels, tracks []string) ProfileEngine {
	if len(levels) == 0 {
		levels = DefaultLevels
	}
	if len(tracks) == 0 {
		tracks = DefaultTracks
	}
	return ProfileEngine{
		levels: slices.Clone(levels),
		tracks: slices.Clone(tracks),
	}
}

// Levels returns the accepted levels
func (e ProfileEngine) Levels() []string {
	return slices.Clone(e.levels)
}

// Tracks returns the accepted tracks
func (e ProfileEngine) Tracks() []string {
	return slices.Clone(e.tracks)
}

// ValidLevel reports whether level is in the accepted set
func (e ProfileEngine) ValidLevel(level string) bool {
	return slices.Contains(e.levels, level)
}

// ValidTrack reports whether track is in the accepted set
func (e ProfileEngine) ValidTrack(track string) bool {
	return slices.Contains(e.tracks, track)
}

// IsComplete reports whether every required profile field is present and
// valid. The login path of the identity plays no part.
func (e ProfileEngine) IsComplete(record *Identity) bool {
	return len(e.Missing(record)) == 0
}

// Missing lists the incomplete fields in a fixed order: family_name,
// given_name, level, track.
func (e ProfileEngine) Missing(record *Identity) []string {
	if record == nil {
		return []string{FieldFamilyName, FieldGivenName, FieldLevel, FieldTrack}
	}

	missing := make([]string, 0, 4)
	if record.FamilyName == "" {
		missing = append(missing, FieldFamilyName)
	}
	if record.GivenName == "" {
		missing = append(missing, FieldGivenName)
	}
	if !e.ValidLevel(record.Level) {
		missing = append(missing, FieldLevel)
	}
	if !e.ValidTrack(record.Track) {
		missing = append(missing, FieldTrack)
	}
	return missing
}

// Apply writes the derived flag onto the record and reports whether it changed.
// Call it on every create and mutating save right before persistence.
func (e ProfileEngine) Apply(record *Identity) bool {
	if record == nil {
		return false
	}
	complete := e.IsComplete(record)
	changed := record.ProfileCompleted != complete
	record.ProfileCompleted = complete
	return changed
}
