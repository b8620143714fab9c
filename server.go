package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Constants
// ===========================

const (
	ListPageSize = 5

	PowerWindow = 30 * time.Second
	ListWindow  = 120 * time.Second

	// ComponentID purposes
	PurposePower = "ppow"
	PurposeList  = "psrv"
)

// ===========================
// Command Registration
// ===========================

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "server",
		Description: "Manage servers on your saved panels",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "Browse the servers on a panel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "panel",
						Description:  "The panel to browse",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "status",
				Description: "Show a server's current status and resource usage",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "panel",
						Description:  "The panel the server is on",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionString{
						Name:         "server_id",
						Description:  "The server to inspect",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "power",
				Description: "Send a power signal to a server",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "panel",
						Description:  "The panel the server is on",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionString{
						Name:         "server_id",
						Description:  "The server to control",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "action",
						Description: "The power signal to send",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Start", Value: "start"},
							{Name: "Stop", Value: "stop"},
							{Name: "Restart", Value: "restart"},
							{Name: "Kill", Value: "kill"},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "command",
				Description: "Run a console command on a server",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "panel",
						Description:  "The panel the server is on",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionString{
						Name:         "server_id",
						Description:  "The server to send the command to",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "command",
						Description: "The console command to run",
						Required:    true,
					},
				},
			},
		},
	}, handleServer)

	RegisterAutocompleteHandler("server", handleServerAutocomplete)
	RegisterComponentHandler(PurposePower+":", handlePowerComponent)
	RegisterComponentHandler(PurposeList+":", handleListComponent)
}

// ===========================
// Routing & Shared Helpers
// ===========================

// handleServer routes server subcommands to their respective handlers
func handleServer(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	switch *data.SubCommandName {
	case "list":
		handleServerList(event, data)
	case "status":
		handleServerStatus(event, data)
	case "power":
		handleServerPower(event, data)
	case "command":
		handleServerCommand(event, data)
	}
}

// resolvePanel looks up the invoker's named panel and replies with the
// appropriate error itself when it cannot.
func resolvePanel(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) (Panel, bool) {
	userID := event.User().ID.String()
	if len(Store.GetPanels(userID)) == 0 {
		RespondText(event, ErrStoreNoPanels)
		return Panel{}, false
	}

	name := data.String("panel")
	panel, ok := Store.FindPanel(userID, name)
	if !ok {
		RespondText(event, ErrStorePanelNotFound, name)
		return Panel{}, false
	}
	return panel, true
}

// ===========================
// /server status
// ===========================

func handleServerStatus(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	panel, ok := resolvePanel(event, data)
	if !ok {
		return
	}
	serverID := data.String("server_id")

	if err := event.DeferCreateMessage(true); err != nil {
		return
	}

	res, err := APIFor(panel).GetResources(AppContext, serverID)
	if err != nil {
		EditText(event, ErrStatusFetchFail, err)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(MsgPowerStatusLine, FormatStatus(res.State)) + "\n\n")
	sb.WriteString(formatResources(res))
	EditText(event, "%s", sb.String())
}

func formatResources(res *Resources) string {
	return strings.Join([]string{
		fmt.Sprintf("**CPU:** %.2f%%", res.CPUPercent),
		fmt.Sprintf("**RAM:** %s", FormatBytes(res.MemoryBytes)),
		fmt.Sprintf("**Disk:** %s", FormatBytes(res.DiskBytes)),
		fmt.Sprintf("**Network:** ↓ %s / ↑ %s", FormatBytes(res.RxBytes), FormatBytes(res.TxBytes)),
		fmt.Sprintf("**Uptime:** %s", FormatDuration(time.Duration(res.UptimeMs)*time.Millisecond)),
	}, "\n")
}

// ===========================
// /server command
// ===========================

func handleServerCommand(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	panel, ok := resolvePanel(event, data)
	if !ok {
		return
	}
	serverID := data.String("server_id")
	command := data.String("command")

	if err := event.DeferCreateMessage(true); err != nil {
		return
	}

	if err := APIFor(panel).SendCommand(AppContext, serverID, command); err != nil {
		EditText(event, ErrCommandSendFail, err)
		return
	}

	LogPanel("User %s ran %q on %s", event.User().ID, command, serverID)
	EditText(event, MsgCommandSent, serverID, Truncate(command, 100))
}

// ===========================
// /server power
// ===========================

// PowerState is the view state behind one power control message.
type PowerState struct {
	Panel    Panel
	ServerID string

	mu     sync.Mutex
	status string
	line   string
	cancel context.CancelFunc

	client *bot.Client
	appID  snowflake.ID
	token  string
}

func handleServerPower(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	panel, ok := resolvePanel(event, data)
	if !ok {
		return
	}
	serverID := data.String("server_id")
	action := data.String("action")

	if err := event.DeferCreateMessage(true); err != nil {
		return
	}

	api := APIFor(panel)
	if err := api.SendPower(AppContext, serverID, action); err != nil {
		EditText(event, ErrPowerSendFail, action, serverID, err)
		return
	}

	state := &PowerState{
		Panel:    panel,
		ServerID: serverID,
		status:   StateUnknown,
		line:     fmt.Sprintf(MsgPowerSent, action, serverID),
		client:   event.Client(),
		appID:    event.ApplicationID(),
		token:    event.Token(),
	}

	sessionID := event.ID().String()
	session := OpenSession(sessionID, event.User().ID.String(), PowerWindow, state, func() error {
		return state.render(sessionID, true)
	})

	LogSession(MsgSessionOpened, "power", sessionID, session.UserID, FormatDuration(PowerWindow))
	_ = state.render(sessionID, false)
	startPowerPoll(session, state, action)
}

// startPowerPoll kicks off a background poll toward the action's target
// state, re-rendering the control message on every observation. Any
// poll already running for this message is cancelled first.
func startPowerPoll(session *Session, state *PowerState, action string) {
	expected := ExpectedState(action)
	if expected == "" {
		return
	}

	pollCtx, cancel := context.WithCancel(AppContext)
	state.mu.Lock()
	if state.cancel != nil {
		state.cancel()
	}
	state.cancel = cancel
	state.mu.Unlock()

	api := APIFor(state.Panel)
	LogPoller(MsgPollerStarted, state.ServerID, expected, FormatDuration(DefaultPollConfig.Interval), FormatDuration(DefaultPollConfig.Deadline))

	safeGo(func() {
		lastPoll := 0
		outcome := RunPoller(pollCtx, DefaultPollConfig, expected, func(ctx context.Context) string {
			return api.GetServerStatus(ctx, state.ServerID)
		}, func(u PollUpdate) {
			lastPoll = u.Poll
			state.mu.Lock()
			state.status = u.State
			switch {
			case u.Done && u.Outcome == PollReached:
				state.line = fmt.Sprintf(MsgPowerReached, u.State)
			case u.Done:
				state.line = fmt.Sprintf(MsgPowerTimedOut, u.Expected, FormatStatus(u.State))
			default:
				state.line = fmt.Sprintf(MsgPowerWaiting, u.Expected, FormatStatus(u.State))
			}
			state.mu.Unlock()
			_ = state.render(session.ID, session.IsClosed())
		})
		if outcome != PollCancelled {
			LogPoller(MsgPollerDone, state.ServerID, FormatStatus(state.currentStatus()), lastPoll)
		}
	})
}

func (s *PowerState) currentStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// render updates the power control message. With disabled set the
// buttons are greyed out and no longer respond.
func (s *PowerState) render(sessionID string, disabled bool) error {
	s.mu.Lock()
	line := s.line
	s.mu.Unlock()

	container := discord.NewContainer(
		discord.NewTextDisplay(fmt.Sprintf("**`%s`**\n%s", s.ServerID, line)),
		powerRow(PurposePower, sessionID, disabled),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "Refresh", ComponentID{PurposePower, sessionID, "refresh"}.Encode(), "", 0).WithDisabled(disabled),
		),
	)

	_, err := s.client.Rest.UpdateInteractionResponse(s.appID, s.token,
		discord.NewMessageUpdate().WithIsComponentsV2(true).WithComponents(container))
	return err
}

// powerRow builds the shared Start/Stop/Restart/Kill button row.
func powerRow(purpose, target string, disabled bool) discord.ActionRowComponent {
	return discord.NewActionRow(
		discord.NewButton(discord.ButtonStyleSuccess, "Start", ComponentID{purpose, target, "start"}.Encode(), "", 0).WithDisabled(disabled),
		discord.NewButton(discord.ButtonStyleDanger, "Stop", ComponentID{purpose, target, "stop"}.Encode(), "", 0).WithDisabled(disabled),
		discord.NewButton(discord.ButtonStylePrimary, "Restart", ComponentID{purpose, target, "restart"}.Encode(), "", 0).WithDisabled(disabled),
		discord.NewButton(discord.ButtonStyleDanger, "Kill", ComponentID{purpose, target, "kill"}.Encode(), "", 0).WithDisabled(disabled),
	)
}

func handlePowerComponent(event *events.ComponentInteractionCreate) {
	cid, err := ParseComponentID(event.Data.CustomID())
	if err != nil {
		return
	}

	session, ok := GetSession(cid.Target)
	if !ok || session.IsClosed() {
		_ = event.CreateMessage(discord.NewMessageCreate().WithContent(MsgSessionExpired).WithEphemeral(true))
		return
	}
	if event.User().ID.String() != session.UserID {
		return
	}
	session.Touch()

	state, ok := session.Data.(*PowerState)
	if !ok {
		return
	}

	_ = event.DeferUpdateMessage()
	api := APIFor(state.Panel)

	switch {
	case ValidPowerSignal(cid.Action):
		if err := api.SendPower(AppContext, state.ServerID, cid.Action); err != nil {
			state.mu.Lock()
			state.line = fmt.Sprintf(ErrPowerSendFail, cid.Action, state.ServerID, err)
			state.mu.Unlock()
			_ = state.render(session.ID, false)
			return
		}
		state.mu.Lock()
		state.line = fmt.Sprintf(MsgPowerSent, cid.Action, state.ServerID)
		state.mu.Unlock()
		_ = state.render(session.ID, false)
		startPowerPoll(session, state, cid.Action)

	case cid.Action == "refresh":
		status := api.GetServerStatus(AppContext, state.ServerID)
		state.mu.Lock()
		state.status = status
		state.line = fmt.Sprintf(MsgPowerStatusLine, FormatStatus(status))
		state.mu.Unlock()
		_ = state.render(session.ID, false)
	}
}

// ===========================
// /server list
// ===========================

// ListState is the view state behind one server browser message.
type ListState struct {
	Panel   Panel
	Servers []Server

	mu       sync.Mutex
	page     int
	detail   string // selected server identifier, "" while on the list
	statuses map[string]string

	client *bot.Client
	appID  snowflake.ID
	token  string
}

func handleServerList(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	panel, ok := resolvePanel(event, data)
	if !ok {
		return
	}

	if err := event.DeferCreateMessage(true); err != nil {
		return
	}

	api := APIFor(panel)
	servers, err := api.FetchServers(AppContext)
	if err != nil {
		EditText(event, ErrServersFetchFail, err)
		return
	}
	if len(servers) == 0 {
		EditText(event, ErrServersNoneFound)
		return
	}

	state := &ListState{
		Panel:    panel,
		Servers:  servers,
		statuses: map[string]string{},
		client:   event.Client(),
		appID:    event.ApplicationID(),
		token:    event.Token(),
	}

	sessionID := event.ID().String()
	session := OpenSession(sessionID, event.User().ID.String(), ListWindow, state, func() error {
		return state.render(sessionID, true)
	})

	LogSession(MsgSessionOpened, "list", sessionID, session.UserID, FormatDuration(ListWindow))
	state.refreshPageStatuses()
	_ = state.render(sessionID, false)
}

func (s *ListState) totalPages() int {
	return (len(s.Servers) + ListPageSize - 1) / ListPageSize
}

func (s *ListState) pageServers() []Server {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	start := page * ListPageSize
	end := Min(start+ListPageSize, len(s.Servers))
	return s.Servers[start:end]
}

// refreshPageStatuses fetches the live state of every server on the
// current page. Failures leave the sentinel state in place.
func (s *ListState) refreshPageStatuses() {
	api := APIFor(s.Panel)
	for _, srv := range s.pageServers() {
		status := api.GetServerStatus(AppContext, srv.Identifier)
		s.mu.Lock()
		s.statuses[srv.Identifier] = status
		s.mu.Unlock()
	}
}

func (s *ListState) statusOf(serverID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[serverID]; ok {
		return st
	}
	return StateUnknown
}

func (s *ListState) findServer(serverID string) (Server, bool) {
	for _, srv := range s.Servers {
		if srv.Identifier == serverID {
			return srv, true
		}
	}
	return Server{}, false
}

// render draws whichever view the state is in (list page or detail).
func (s *ListState) render(sessionID string, disabled bool) error {
	s.mu.Lock()
	detail := s.detail
	s.mu.Unlock()

	var container discord.ContainerComponent
	if detail != "" {
		container = s.renderDetail(sessionID, detail, disabled)
	} else {
		container = s.renderListPage(sessionID, disabled)
	}

	_, err := s.client.Rest.UpdateInteractionResponse(s.appID, s.token,
		discord.NewMessageUpdate().WithIsComponentsV2(true).WithComponents(container))
	return err
}

func (s *ListState) renderListPage(sessionID string, disabled bool) discord.ContainerComponent {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	total := s.totalPages()
	pageServers := s.pageServers()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(MsgServerListTitle, page+1, total) + "\n\n")
	for _, srv := range pageServers {
		sb.WriteString(fmt.Sprintf("%s **%s**\n`%s` · %s\n", StatusEmoji(s.statusOf(srv.Identifier)), srv.Name, srv.Identifier, srv.Node))
	}
	start := page * ListPageSize
	sb.WriteString("\n" + fmt.Sprintf(MsgServerListFooter, start+1, start+len(pageServers), len(s.Servers)))

	var opts []discord.StringSelectMenuOption
	for _, srv := range pageServers {
		opts = append(opts, discord.NewStringSelectMenuOption(Truncate(srv.Name, 100), srv.Identifier).
			WithDescription(srv.Identifier))
	}
	selectMenu := discord.NewStringSelectMenu(ComponentID{PurposeList, sessionID, "sel"}.Encode(), MsgServerListSelect, opts...).
		WithDisabled(disabled)

	return discord.NewContainer(
		discord.NewTextDisplay(sb.String()),
		discord.NewActionRow(selectMenu),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "Prev", ComponentID{PurposeList, sessionID, "prev"}.Encode(), "", 0).WithDisabled(disabled || page == 0),
			discord.NewButton(discord.ButtonStyleSecondary, "Next", ComponentID{PurposeList, sessionID, "next"}.Encode(), "", 0).WithDisabled(disabled || page >= total-1),
			discord.NewButton(discord.ButtonStyleSecondary, "Refresh", ComponentID{PurposeList, sessionID, "refresh"}.Encode(), "", 0).WithDisabled(disabled),
		),
	)
}

func (s *ListState) renderDetail(sessionID, serverID string, disabled bool) discord.ContainerComponent {
	srv, found := s.findServer(serverID)
	if !found {
		// Not in the cached listing; ask the panel for it directly.
		if fetched, err := APIFor(s.Panel).GetServer(AppContext, serverID); err == nil {
			srv, found = *fetched, true
		}
	}

	var sb strings.Builder
	if found {
		sb.WriteString(fmt.Sprintf("**%s**\n`%s` · %s\n\n", srv.Name, srv.Identifier, srv.Node))
	} else {
		sb.WriteString(fmt.Sprintf("**`%s`**\n\n", serverID))
	}

	res, err := APIFor(s.Panel).GetResources(AppContext, serverID)
	if err != nil {
		sb.WriteString(ErrServerDetailFail)
	} else {
		s.mu.Lock()
		s.statuses[serverID] = res.State
		s.mu.Unlock()
		sb.WriteString(fmt.Sprintf(MsgPowerStatusLine, FormatStatus(res.State)) + "\n\n")
		sb.WriteString(formatResources(res))
		if found {
			sb.WriteString(fmt.Sprintf("\n**Limits:** %s RAM · %s Disk", FormatMegabytes(srv.Limits.Memory), FormatMegabytes(srv.Limits.Disk)))
		}
	}

	return discord.NewContainer(
		discord.NewTextDisplay(sb.String()),
		powerRow(PurposeList, sessionID, disabled),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "Refresh", ComponentID{PurposeList, sessionID, "refresh"}.Encode(), "", 0).WithDisabled(disabled),
			discord.NewButton(discord.ButtonStyleSecondary, "Back", ComponentID{PurposeList, sessionID, "back"}.Encode(), "", 0).WithDisabled(disabled),
		),
	)
}

func handleListComponent(event *events.ComponentInteractionCreate) {
	cid, err := ParseComponentID(event.Data.CustomID())
	if err != nil {
		return
	}

	session, ok := GetSession(cid.Target)
	if !ok || session.IsClosed() {
		_ = event.CreateMessage(discord.NewMessageCreate().WithContent(MsgSessionExpired).WithEphemeral(true))
		return
	}
	if event.User().ID.String() != session.UserID {
		return
	}
	session.Touch()

	state, ok := session.Data.(*ListState)
	if !ok {
		return
	}

	_ = event.DeferUpdateMessage()
	api := APIFor(state.Panel)

	switch {
	case cid.Action == "sel":
		if menu, ok := event.Data.(discord.StringSelectMenuInteractionData); ok && len(menu.Values) > 0 {
			state.mu.Lock()
			state.detail = menu.Values[0]
			state.mu.Unlock()
		}

	case cid.Action == "prev":
		state.mu.Lock()
		state.page = Max(state.page-1, 0)
		state.mu.Unlock()
		state.refreshPageStatuses()

	case cid.Action == "next":
		state.mu.Lock()
		state.page = Min(state.page+1, state.totalPages()-1)
		state.mu.Unlock()
		state.refreshPageStatuses()

	case cid.Action == "back":
		state.mu.Lock()
		state.detail = ""
		state.mu.Unlock()
		state.refreshPageStatuses()

	case cid.Action == "refresh":
		state.mu.Lock()
		detail := state.detail
		state.mu.Unlock()
		if detail == "" {
			state.refreshPageStatuses()
		}

	case ValidPowerSignal(cid.Action):
		state.mu.Lock()
		detail := state.detail
		state.mu.Unlock()
		if detail == "" {
			return
		}
		if err := api.SendPower(AppContext, detail, cid.Action); err == nil {
			LogPanel("User %s sent %q to %s", session.UserID, cid.Action, detail)
			// Give the daemon a beat to apply the signal before re-reading.
			time.Sleep(time.Second)
		}
	}

	_ = state.render(session.ID, false)
}

// ===========================
// Autocomplete
// ===========================

func handleServerAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	userID := event.User().ID.String()

	switch focused.Name {
	case "panel":
		_ = event.AutocompleteResult(PanelNameChoices(userID, focused.String()))

	case "server_id":
		panel, ok := Store.FindPanel(userID, event.Data.String("panel"))
		if !ok {
			_ = event.AutocompleteResult(nil)
			return
		}

		servers, err := APIFor(panel).FetchServers(AppContext)
		if err != nil {
			_ = event.AutocompleteResult(nil)
			return
		}

		input := focused.String()
		var choices []discord.AutocompleteChoice
		for _, srv := range servers {
			if input != "" && !ContainsLower(srv.Name, input) && !ContainsLower(srv.Identifier, input) {
				continue
			}
			choices = append(choices, discord.AutocompleteChoiceString{
				Name:  Truncate(fmt.Sprintf("%s (%s)", srv.Name, srv.Identifier), 100),
				Value: srv.Identifier,
			})
			if len(choices) >= 25 {
				break
			}
		}
		_ = event.AutocompleteResult(choices)

	default:
		_ = event.AutocompleteResult(nil)
	}
}
