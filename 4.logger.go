package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	storeColor    = color.New(color.FgMagenta)
	panelColor    = color.New(color.FgMagenta)
	pollerColor   = color.New(color.FgMagenta)
	sessionColor  = color.New(color.FgMagenta)

	// Global state
	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	// Internal state
	logFile *os.File
	logMu   sync.Mutex
)

// --- Initialization ---

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		exePath, exeErr := os.Executable()
		logName := GetProjectName() + ".log"
		if exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogStore(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "store"))
}

func LogPanel(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "panel"))
}

func LogPoller(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "poller"))
}

func LogSession(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "session"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	default:
		levelStr = "DEBUG"
		levelColor = infoColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", compColor.Sprintf("[%s] %s", component, r.Message))
	} else {
		fmt.Fprintf(h.w, " %s\n", levelColor.Sprintf("[%s] %s", levelStr, r.Message))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "STORE":
		return storeColor
	case "PANEL":
		return panelColor
	case "POLLER":
		return pollerColor
	case "SESSION":
		return sessionColor
	default:
		return color.New(color.FgCyan)
	}
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotAPIStatusError   = "discord API returned status %d"
	MsgGenericError        = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderUpToDate           = "[LOADER] Commands are up to date. (Hash: %s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Panel Store ---
	MsgStoreLoaded        = "Panel store loaded (%d users)"
	MsgStoreWriteFail     = "Failed to write panel store: %v"
	ErrStoreNoPanels      = "You don't have any panel data configured. Please run `/panel setup` first."
	ErrStorePanelNotFound = "No panel found with the name \"%s\"."
	ErrStoreDuplicateName = "You already have a panel saved with the name \"%s\"."
	ErrStoreDuplicateURL  = "You already have a panel saved with that URL."

	// --- Panel Setup & Management ---
	MsgPanelSaved         = "Panel **%s** has been saved to your profile."
	MsgPanelUpdated       = "Panel \"%s\" has been updated."
	MsgPanelRenamed       = "Panel \"%s\" has been updated. New name: %s."
	MsgPanelDeleted       = "Panel \"%s\" has been deleted."
	MsgPanelDataWiped     = "All your panel data has been deleted."
	MsgPanelListHeader    = "**Your Panels** (%d saved)\n\n"
	MsgPanelListItem      = "%d. **%s** — `%s`\n"
	ErrPanelInvalidKey    = "Invalid API key."
	ErrPanelHTTPStatus    = "Panel returned HTTP %d."
	ErrPanelUnreachable   = "Could not reach the panel at `%s`. Check the URL and try again."
	ErrPanelProbeGeneric  = "An error occurred: `%v`."
	ErrPanelNothingToEdit = "Nothing to update. Provide a new name, URL, or API key."

	// --- Server Commands ---
	MsgPowerSent        = "Sent `%s` to `%s`. Fetching status..."
	MsgPowerSignalSent  = "Sent `%s` command."
	MsgPowerReached     = "Server is now `%s`."
	MsgPowerWaiting     = "Waiting for `%s`… Current: **%s**"
	MsgPowerTimedOut    = "Did not reach `%s` in time. Current: **%s**"
	MsgPowerStatusLine  = "Current server status: **%s**"
	MsgPowerRefreshed   = "Status refreshed."
	ErrPowerSendFail    = "Error sending `%s` to server `%s`: %v"
	ErrCommandSendFail  = "Failed to send command: `%v`"
	MsgCommandSent      = "Command sent to `%s`: `%s`"
	ErrServersFetchFail = "Failed to fetch servers: %v"
	ErrServersNoneFound = "No servers found on that panel."
	ErrServerDetailFail = "Could not load server."
	ErrStatusFetchFail  = "Error: `%v`"
	MsgServerListTitle  = "**Servers — Page %d/%d**"
	MsgServerListFooter = "_Showing %d-%d of %d. Select a server to manage below._"
	MsgServerListSelect = "Select a server…"

	// --- Poller & Session ---
	MsgSessionExpired     = "These controls have expired. Run the command again."
	MsgPollerStarted      = "Polling %s for state %q (interval %s, deadline %s)"
	MsgPollerDone         = "Poller for %s finished: %s after %d poll(s)"
	MsgSessionOpened      = "Opened %s session %s for user %s (window %s)"
	MsgSessionClosed      = "Session %s expired, controls disabled"
	MsgSessionCloseFail   = "Failed to disable controls for session %s: %v"
	MsgSessionReaperSweep = "Reaped %d stale session(s)"
)
