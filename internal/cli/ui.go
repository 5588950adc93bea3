package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sumit-dhanorkar/sitewizard/internal/conversation"
	"github.com/sumit-dhanorkar/sitewizard/internal/profile"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	assistantLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36"))
	userLabel      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hintStyle      = lipgloss.NewStyle().Faint(true)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
)

func showWelcomeBanner() {
	fmt.Println(titleStyle.Render("sitewizard") + " - build your business website by answering a few questions")
	fmt.Println(hintStyle.Render("Commands: /edit <field>  /skip  /summary  /generate  /reset  /help  /exit"))
	fmt.Println()
}

func showHelp() {
	fmt.Println(sectionStyle.Render("Commands"))
	fmt.Println("  /edit <field>   jump back to a specific field (e.g. /edit company_name)")
	fmt.Println("  /skip           skip the current question")
	fmt.Println("  /summary        show everything collected so far")
	fmt.Println("  /generate       start generating your website")
	fmt.Println("  /reset          discard everything and start over")
	fmt.Println("  /exit           leave the wizard (progress is saved)")
	fmt.Println()
	fmt.Println(sectionStyle.Render("Editable fields"))
	fmt.Println("  " + strings.Join(conversation.EditableFields(), ", "))
}

func renderMessage(m conversation.Message) string {
	label := assistantLabel.Render("wizard")
	if m.Role == conversation.RoleUser {
		label = userLabel.Render("you")
	}
	content := m.Content
	if m.Status == conversation.StatusError {
		content = errorStyle.Render(content)
	}
	return fmt.Sprintf("%s> %s", label, content)
}

func renderProfileSummary(p *profile.BusinessProfile) string {
	var b strings.Builder

	if p.CompanyName != "" || p.CompanyType != "" || p.Description != "" || p.YearEstablished > 0 {
		b.WriteString(sectionStyle.Render("Company") + "\n")
		writeField(&b, "Name", p.CompanyName)
		writeField(&b, "Type", p.CompanyType)
		writeField(&b, "About", p.Description)
		if p.YearEstablished > 0 {
			writeField(&b, "Established", fmt.Sprintf("%d", p.YearEstablished))
		}
	}

	if p.Contact != (profile.Contact{}) {
		b.WriteString("\n" + sectionStyle.Render("Contact") + "\n")
		writeField(&b, "Email", p.Contact.Email)
		writeField(&b, "Phone", p.Contact.Phone)
		writeField(&b, "WhatsApp", p.Contact.WhatsApp)
		writeField(&b, "Address", p.Contact.Address)
		writeField(&b, "Website", p.Contact.Website)
	}

	if len(p.ProductCategories) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Products") + "\n")
		for _, cat := range p.ProductCategories {
			b.WriteString("  " + cat.Name + "\n")
			for _, prod := range cat.Products {
				line := "    - " + prod.Name
				if !prod.Price.IsZero() {
					line += fmt.Sprintf(" (%s %s)", prod.Price.String(), prod.PriceUnit)
				}
				b.WriteString(line + "\n")
			}
		}
	}

	if len(p.ExportDestinations) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Export markets") + "\n")
		b.WriteString("  " + strings.Join(p.ExportDestinations, ", ") + "\n")
	}

	if len(p.Certifications) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Certifications") + "\n")
		for _, cert := range p.Certifications {
			line := "  - " + cert.Name
			if cert.IssuedBy != "" {
				line += " (" + cert.IssuedBy + ")"
			}
			b.WriteString(line + "\n")
		}
	}

	if len(p.TeamMembers) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Team") + "\n")
		for _, member := range p.TeamMembers {
			line := "  - " + member.Name
			if member.Role != "" {
				line += ", " + member.Role
			}
			b.WriteString(line + "\n")
		}
	}

	if p.Design != (profile.DesignPreferences{}) {
		b.WriteString("\n" + sectionStyle.Render("Design") + "\n")
		writeField(&b, "Style", p.Design.TemplateStyle)
		writeField(&b, "Primary color", p.Design.PrimaryColor)
		writeField(&b, "Secondary color", p.Design.SecondaryColor)
		writeField(&b, "Font", p.Design.FontFamily)
	}

	if b.Len() == 0 {
		return hintStyle.Render("Nothing collected yet.")
	}
	return strings.TrimPrefix(b.String(), "\n")
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "  %-16s %s\n", label+":", value)
}
