package main

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
)

// ===========================
// Command Registration
// ===========================

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "panel",
		Description: "Manage your saved Pterodactyl panels",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "setup",
				Description: "Save a panel URL and API key to your profile",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "name",
						Description: "A name to identify this panel",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "url",
						Description: "The panel URL (e.g. https://panel.example.com)",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "api_key",
						Description: "Your panel API key",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "edit",
				Description: "Update a saved panel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "name",
						Description:  "The panel to edit",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "new_name",
						Description: "A new name for the panel",
						Required:    false,
					},
					discord.ApplicationCommandOptionString{
						Name:        "new_url",
						Description: "A new URL for the panel",
						Required:    false,
					},
					discord.ApplicationCommandOptionString{
						Name:        "new_key",
						Description: "A new API key for the panel",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "delete",
				Description: "Delete a saved panel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "name",
						Description:  "The panel to delete",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "wipe",
				Description: "Delete all your saved panel data",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List your saved panels",
			},
		},
	}, handlePanel)

	RegisterAutocompleteHandler("panel", handlePanelAutocomplete)
}

// ===========================
// Command Handlers
// ===========================

// handlePanel routes panel subcommands to their respective handlers
func handlePanel(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	switch *data.SubCommandName {
	case "setup":
		handlePanelSetup(event, data)
	case "edit":
		handlePanelEdit(event, data)
	case "delete":
		handlePanelDelete(event, data)
	case "wipe":
		handlePanelWipe(event)
	case "list":
		handlePanelList(event)
	}
}

func handlePanelSetup(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	userID := event.User().ID.String()
	name := strings.TrimSpace(data.String("name"))
	url := SanitizePanelURL(data.String("url"))
	apiKey := strings.TrimSpace(data.String("api_key"))

	// Duplicate checks come before the probe so bad input never costs a
	// network round trip.
	for _, p := range Store.GetPanels(userID) {
		if p.PanelURL == url {
			RespondText(event, ErrStoreDuplicateURL)
			return
		}
	}
	for _, p := range Store.GetPanels(userID) {
		if strings.EqualFold(p.PanelName, name) {
			RespondText(event, ErrStoreDuplicateName, name)
			return
		}
	}

	if err := event.DeferCreateMessage(true); err != nil {
		return
	}

	if err := ProbePanelKey(AppContext, url, apiKey); err != nil {
		EditText(event, "%s", err.Error())
		return
	}

	if err := Store.AddPanel(userID, Panel{PanelName: name, PanelURL: url, APIKey: apiKey}); err != nil {
		EditText(event, "%s", err.Error())
		return
	}

	LogPanel("User %s saved panel %q (%s)", userID, name, url)
	EditText(event, MsgPanelSaved, name)
}

func handlePanelEdit(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	userID := event.User().ID.String()
	name := data.String("name")
	newName, _ := data.OptString("new_name")
	newURL, _ := data.OptString("new_url")
	newKey, _ := data.OptString("new_key")

	newName = strings.TrimSpace(newName)
	newKey = strings.TrimSpace(newKey)
	if newURL != "" {
		newURL = SanitizePanelURL(newURL)
	}

	RespondText(event, "%s", editPanelReply(userID, name, newName, newURL, newKey))
}

// editPanelReply applies a panel edit and returns the user-facing reply.
// A user with nothing configured is told so before any name resolution.
func editPanelReply(userID, name, newName, newURL, newKey string) string {
	if len(Store.GetPanels(userID)) == 0 {
		return ErrStoreNoPanels
	}
	if newName == "" && newURL == "" && newKey == "" {
		return ErrPanelNothingToEdit
	}

	updated, err := Store.EditPanel(userID, name, newName, newURL, newKey)
	if err != nil {
		return err.Error()
	}

	LogPanel("User %s updated panel %q", userID, updated.PanelName)
	if newName != "" && !strings.EqualFold(newName, name) {
		return fmt.Sprintf(MsgPanelRenamed, name, updated.PanelName)
	}
	return fmt.Sprintf(MsgPanelUpdated, updated.PanelName)
}

func handlePanelDelete(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	userID := event.User().ID.String()
	RespondText(event, "%s", deletePanelReply(userID, data.String("name")))
}

// deletePanelReply removes a panel and returns the user-facing reply.
func deletePanelReply(userID, name string) string {
	if len(Store.GetPanels(userID)) == 0 {
		return ErrStoreNoPanels
	}
	if err := Store.DeletePanel(userID, name); err != nil {
		return err.Error()
	}

	LogPanel("User %s deleted panel %q", userID, name)
	return fmt.Sprintf(MsgPanelDeleted, name)
}

func handlePanelWipe(event *events.ApplicationCommandInteractionCreate) {
	userID := event.User().ID.String()

	if !Store.DeleteAll(userID) {
		RespondText(event, ErrStoreNoPanels)
		return
	}

	LogPanel("User %s wiped all panel data", userID)
	RespondText(event, MsgPanelDataWiped)
}

func handlePanelList(event *events.ApplicationCommandInteractionCreate) {
	userID := event.User().ID.String()

	panels := Store.GetPanels(userID)
	if len(panels) == 0 {
		RespondText(event, ErrStoreNoPanels)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(MsgPanelListHeader, len(panels)))
	for i, p := range panels {
		sb.WriteString(fmt.Sprintf(MsgPanelListItem, i+1, p.PanelName, p.PanelURL))
	}
	RespondText(event, "%s", sb.String())
}

// ===========================
// Autocomplete
// ===========================

// PanelNameChoices builds autocomplete choices from a user's saved
// panels, filtered case-insensitively by the current input.
func PanelNameChoices(userID, input string) []discord.AutocompleteChoice {
	var choices []discord.AutocompleteChoice
	for _, p := range Store.GetPanels(userID) {
		if input != "" && !ContainsLower(p.PanelName, input) {
			continue
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  p.PanelName,
			Value: p.PanelName,
		})
		if len(choices) >= 25 {
			break
		}
	}
	return choices
}

func handlePanelAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "name" {
		_ = event.AutocompleteResult(nil)
		return
	}

	userID := event.User().ID.String()
	_ = event.AutocompleteResult(PanelNameChoices(userID, focused.String()))
}
