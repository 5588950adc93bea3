package widget

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
	"github.com/sumit-dhanorkar/sitewizard/internal/profile"
)

func promptMessage(d api.WidgetDescriptor) string {
	if msg, ok := d.Config["prompt"].(string); ok && strings.TrimSpace(msg) != "" {
		return msg
	}
	field := strings.ReplaceAll(d.Field, "_", " ")
	if field == "" {
		return "Your answer:"
	}
	return fmt.Sprintf("Enter %s:", field)
}

func configOptions(d api.WidgetDescriptor) []string {
	raw, ok := d.Config["options"].([]interface{})
	if !ok {
		return nil
	}
	options := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			options = append(options, s)
		}
	}
	return options
}

// prefill returns the profile's current value for fields a text widget
// can sensibly default from.
func prefill(field string, p *profile.BusinessProfile) string {
	if p == nil {
		return ""
	}
	switch field {
	case "company_name":
		return p.CompanyName
	case "company_type":
		return p.CompanyType
	case "description":
		return p.Description
	case "email":
		return p.Contact.Email
	case "phone":
		return p.Contact.Phone
	case "whatsapp":
		return p.Contact.WhatsApp
	case "address":
		return p.Contact.Address
	case "primary_color":
		return p.Design.PrimaryColor
	case "secondary_color":
		return p.Design.SecondaryColor
	case "template_style":
		return p.Design.TemplateStyle
	default:
		return ""
	}
}

func renderText(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error) {
	var answer string
	prompt := &survey.Input{
		Message: promptMessage(d),
		Default: prefill(d.Field, p),
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return "", err
	}
	return EncodeAnswer(strings.TrimSpace(answer)), nil
}

func renderTextarea(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error) {
	var answer string
	prompt := &survey.Multiline{
		Message: promptMessage(d),
		Default: prefill(d.Field, p),
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return "", err
	}
	return EncodeAnswer(strings.TrimSpace(answer)), nil
}

func renderSelect(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error) {
	options := configOptions(d)
	if len(options) == 0 {
		// A select without options degrades to free text.
		return renderText(d, p)
	}
	var answer string
	prompt := &survey.Select{
		Message: promptMessage(d),
		Options: options,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return "", err
	}
	return EncodeAnswer(answer), nil
}

func renderMultiSelect(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error) {
	options := configOptions(d)
	if len(options) == 0 {
		return renderText(d, p)
	}
	var answers []string
	prompt := &survey.MultiSelect{
		Message: promptMessage(d),
		Options: options,
		Help:    "Use space to select, enter to confirm.",
	}
	if err := survey.AskOne(prompt, &answers); err != nil {
		return "", err
	}
	return EncodeAnswer(answers), nil
}

func renderConfirm(d api.WidgetDescriptor, _ *profile.BusinessProfile) (string, error) {
	var answer bool
	prompt := &survey.Confirm{
		Message: promptMessage(d),
		Default: true,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return "", err
	}
	if answer {
		return "yes", nil
	}
	return "no", nil
}

var defaultPalette = []string{
	"#1D4ED8", "#0F766E", "#B91C1C", "#7C3AED", "#B45309", "#334155",
}

func renderColorPicker(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error) {
	options := configOptions(d)
	if len(options) == 0 {
		options = defaultPalette
	}
	var answer string
	prompt := &survey.Select{
		Message: promptMessage(d),
		Options: options,
		Default: firstNonEmpty(prefill(d.Field, p), options[0]),
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return "", err
	}
	return EncodeAnswer(answer), nil
}

// renderFallback handles tags this client version does not know. The
// step stays visible and answerable as plain text rather than failing.
func renderFallback(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error) {
	fmt.Printf("(This step uses an input type %q this version doesn't support; type your answer instead.)\n", d.Type)
	return renderText(d, p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
