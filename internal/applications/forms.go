package applications

import "github.com/qwmc/qwmc-web/internal/models"

// FieldKind selects how an answer is checked.
type FieldKind string

// FieldKind constants.
const (
	FieldText     FieldKind = "text"
	FieldTextarea FieldKind = "textarea"
	FieldNumber   FieldKind = "number"
	FieldURL      FieldKind = "url"
	FieldSelect   FieldKind = "select"
)

// maxAnswerLength bounds one answer in characters.
const maxAnswerLength = 4000

// Field is one question of a form.
type Field struct {
	ID       string    `json:"id"`                // Answer key.
	Label    string    `json:"label"`             // Question shown to the player.
	Kind     FieldKind `json:"kind"`              // Input type.
	Required bool      `json:"required"`          // Whether an empty answer is rejected.
	Options  []string  `json:"options,omitempty"` // Allowed values for select fields.
}

// Form is the question set of one application type.
type Form struct {
	Type   models.ApplicationType `json:"type"`
	Title  string                 `json:"title"`
	Fields []Field                `json:"fields"`
}

func required(id, label string, kind FieldKind) Field {
	return Field{ID: id, Label: label, Kind: kind, Required: true}
}

var forms = map[models.ApplicationType]Form{
	models.ApplicationStaff: {
		Type:  models.ApplicationStaff,
		Title: "Staff Application",
		Fields: []Field{
			required("minecraft_username", "Minecraft username", FieldText),
			required("age", "Age", FieldNumber),
			required("discord", "Discord username", FieldText),
			required("timezone", "Timezone", FieldText),
			required("about_yourself", "Tell us about yourself", FieldTextarea),
			required("experience", "Previous moderation experience", FieldTextarea),
			required("why_join", "Why do you want to join the team?", FieldTextarea),
			required("time_available", "How much time can you dedicate each week?", FieldText),
		},
	},
	models.ApplicationBuilder: {
		Type:  models.ApplicationBuilder,
		Title: "Builder Application",
		Fields: []Field{
			required("minecraft_username", "Minecraft username", FieldText),
			required("about_yourself", "Tell us about yourself", FieldTextarea),
			required("portfolio", "Portfolio link or description", FieldTextarea),
			required("building_style", "Preferred building style", FieldText),
			{ID: "worldedit", Label: "WorldEdit experience", Kind: FieldSelect, Required: true, Options: []string{"None", "Basic", "Intermediate", "Advanced"}},
			required("availability", "Availability", FieldText),
			required("project_idea", "Describe a project you would build", FieldTextarea),
		},
	},
	models.ApplicationYouTuber: {
		Type:  models.ApplicationYouTuber,
		Title: "YouTuber Application",
		Fields: []Field{
			required("minecraft_username", "Minecraft username", FieldText),
			required("discord", "Discord username", FieldText),
			required("about_yourself", "Tell us about yourself", FieldTextarea),
			required("channel_link", "Channel link", FieldURL),
			required("server_video", "Link to a video of the server", FieldURL),
			required("subscriber_count", "Subscriber count", FieldNumber),
			required("content_plans", "Content plans", FieldTextarea),
			{ID: "upload_schedule", Label: "Upload schedule", Kind: FieldSelect, Required: true, Options: []string{"Multiple times per week", "Weekly", "Bi-weekly", "Monthly"}},
		},
	},
	models.ApplicationBanAppeal: {
		Type:  models.ApplicationBanAppeal,
		Title: "Ban Appeal",
		Fields: []Field{
			required("username", "Minecraft username", FieldText),
			required("reason", "Reason given for the ban", FieldTextarea),
			required("explanation", "Your side of the story", FieldTextarea),
			required("future", "What will you do differently?", FieldTextarea),
			{ID: "evidence", Label: "Evidence (optional)", Kind: FieldTextarea},
		},
	},
}

// Forms returns every form in display order.
func Forms() []Form {
	out := make([]Form, 0, len(forms))
	for _, kind := range models.ApplicationTypes() {
		out = append(out, forms[kind])
	}
	return out
}

// FormFor returns the form of one application type.
func FormFor(kind models.ApplicationType) (Form, bool) {
	form, ok := forms[kind]
	return form, ok
}
