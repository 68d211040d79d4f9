package killmail

import (
	"context"
	"fmt"
	"strings"

	"eve_bot/internal/esi"
)

// formatNotice renders an accepted kill as a notification message,
// resolving every id to a display name.
func (p *Pipeline) formatNotice(ctx context.Context, ref KillRef, detail *esi.Killmail, regionID int64) (string, error) {
	shipName, err := p.esi.Name(ctx, esi.CategoryType, detail.Victim.ShipTypeID)
	if err != nil {
		return "", err
	}
	systemName, err := p.esi.Name(ctx, esi.CategorySystem, detail.SolarSystemID)
	if err != nil {
		return "", err
	}
	regionName, err := p.esi.Name(ctx, esi.CategoryRegion, regionID)
	if err != nil {
		return "", err
	}

	victimName := p.optionalName(ctx, esi.CategoryCharacter, detail.Victim.CharacterID)
	victimCorp := p.optionalName(ctx, esi.CategoryCorporation, detail.Victim.CorporationID)
	victimAlliance := p.optionalName(ctx, esi.CategoryAlliance, detail.Victim.AllianceID)
	if victimName == "" {
		victimName = "Unknown"
	}
	if victimCorp == "" {
		victimCorp = "Unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Valuable kill in %s (%s)\n", systemName, regionName)
	fmt.Fprintf(&b, "Value: %s ISK\n\n", formatISK(ref.TotalValue))
	fmt.Fprintf(&b, "Victim: %s (%s", victimName, victimCorp)
	if victimAlliance != "" {
		fmt.Fprintf(&b, ", %s", victimAlliance)
	}
	fmt.Fprintf(&b, ")\nShip: %s\n", shipName)

	if fb, ok := detail.FinalBlow(); ok {
		killerName := p.optionalName(ctx, esi.CategoryCharacter, fb.CharacterID)
		if killerName == "" {
			killerName = "Unknown"
		}
		killerShip := p.optionalName(ctx, esi.CategoryType, fb.ShipTypeID)
		fmt.Fprintf(&b, "Final blow: %s", killerName)
		if killerShip != "" {
			fmt.Fprintf(&b, " in a %s", killerShip)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Attackers: %d\n", len(detail.Attackers))
	fmt.Fprintf(&b, "Time: %s\n\n", detail.KillmailTime.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "https://zkillboard.com/kill/%d/", detail.KillmailID)
	return b.String(), nil
}

// optionalName resolves a possibly-zero id; lookup failures degrade to
// "Unknown" rather than dropping the notification.
func (p *Pipeline) optionalName(ctx context.Context, category esi.Category, id int64) string {
	if id == 0 {
		return ""
	}
	name, err := p.esi.Name(ctx, category, id)
	if err != nil {
		p.log.Warn("resolve name", "category", category, "id", id, "error", err)
		return "Unknown"
	}
	return name
}

// formatISK renders an ISK amount with thousands separators.
func formatISK(v float64) string {
	n := int64(v)
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}
