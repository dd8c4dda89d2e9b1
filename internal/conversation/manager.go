package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/metrics"
	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/internal/notify"
	"github.com/smartdevs17/nft-trade-watcher/internal/storage"
	"github.com/smartdevs17/nft-trade-watcher/internal/tracker"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// EventKind discriminates inbound user interaction events.
type EventKind string

const (
	EventCommand EventKind = "command"
	EventChoice  EventKind = "choice"
	EventText    EventKind = "text"
)

// Event is one user interaction: a slash command, a button press
// (Data carries the callback payload, e.g. "blockchain:ethereum"),
// or free text.
type Event struct {
	UserID    int64
	FirstName string
	Username  string
	Kind      EventKind
	Command   string
	Data      string
}

// Choice is one option of a choice prompt.
type Choice struct {
	Label string
	Data  string
}

// Messenger delivers prompts and confirmations to a user.
type Messenger interface {
	SendMessage(ctx context.Context, userID int64, text string) error
	SendChoicePrompt(ctx context.Context, userID int64, text string, choices []Choice) error
}

// Resolver maps a (blockchain, marketplace) pair to a tracker variant.
type Resolver interface {
	Lookup(blockchain, marketplace string) (tracker.Tracker, error)
	Supported(blockchain, marketplace string) bool
}

var marketplaceMenu = map[string][]string{
	"ethereum": {"opensea", "blur", "looksrare"},
	"solana":   {"magiceden", "tensor"},
	"polygon":  {"opensea", "okx"},
}

var alertTypeNames = map[models.AlertType]string{
	models.AlertAll:       "All transactions",
	models.AlertSales:     "Sales only",
	models.AlertPurchases: "Purchases only",
}

var frequencyNames = map[models.UpdateFrequency]string{
	models.FrequencyInstant: "Instant alerts",
	models.Frequency10Min:   "Every 10 minutes",
	models.FrequencyHourly:  "Hourly updates",
}

// Manager drives the multi-step configuration flows. All interim state
// lives in the session store; persistence is only touched at terminal
// transitions (and reads at flow start).
type Manager struct {
	store     storage.Storage
	resolver  Resolver
	sessions  SessionStore
	messenger Messenger
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewManager creates a conversation manager.
func NewManager(store storage.Storage, resolver Resolver, sessions SessionStore,
	messenger Messenger, m *metrics.Metrics) *Manager {

	return &Manager{
		store:     store,
		resolver:  resolver,
		sessions:  sessions,
		messenger: messenger,
		metrics:   m,
		logger:    utils.GetLogger(),
	}
}

// HandleEvent routes one user interaction to the current flow state.
// Errors returned here are internal failures; user mistakes are
// answered with a corrective prompt and a nil error.
func (m *Manager) HandleEvent(ctx context.Context, event *Event) error {
	if event.Kind == EventCommand {
		return m.handleCommand(ctx, event)
	}

	session, ok := m.sessions.Get(event.UserID)
	if !ok {
		// A stray button press or text outside any flow.
		m.logger.WithFields(logrus.Fields{
			"user": event.UserID,
			"kind": event.Kind,
		}).Debug("Event without active session ignored")
		return nil
	}

	if event.Kind == EventChoice && event.Data == "cancel" {
		return m.cancelSession(ctx, session)
	}

	switch session.State {
	case StateAwaitBlockchain:
		return m.blockchainSelected(ctx, session, event)
	case StateAwaitMarketplace:
		return m.marketplaceSelected(ctx, session, event)
	case StateAwaitAddress:
		return m.addressEntered(ctx, session, event)
	case StateAwaitSelection:
		return m.removalSelected(ctx, session, event)
	case StateAwaitCategory:
		return m.settingsCategorySelected(ctx, session, event)
	case StateAwaitAlertType:
		return m.alertTypeSelected(ctx, session, event)
	case StateAwaitFrequency:
		return m.frequencySelected(ctx, session, event)
	default:
		m.sessions.Delete(session.UserID)
		return utils.NewAppError(utils.ErrCodeInternal, "Unknown conversation state", string(session.State))
	}
}

func (m *Manager) handleCommand(ctx context.Context, event *Event) error {
	switch strings.TrimPrefix(event.Command, "/") {
	case "start":
		return m.startCommand(ctx, event)
	case "help":
		return m.messenger.SendMessage(ctx, event.UserID, helpText)
	case "addcollection":
		return m.startAddCollection(ctx, event)
	case "removecollection":
		return m.startRemoveCollection(ctx, event)
	case "listcollections":
		return m.listCollections(ctx, event)
	case "settings":
		return m.startSettings(ctx, event)
	case "cancel":
		session, ok := m.sessions.Get(event.UserID)
		if !ok {
			return m.messenger.SendMessage(ctx, event.UserID, "Nothing to cancel.")
		}
		return m.cancelSession(ctx, session)
	default:
		return m.messenger.SendMessage(ctx, event.UserID,
			"Unknown command. Use /help to see available commands.")
	}
}

const helpText = "NFT Transaction Tracker Bot - Help\n\n" +
	"Available commands:\n" +
	"/start - Start the bot and see welcome message\n" +
	"/addcollection - Add an NFT collection to track\n" +
	"/removecollection - Stop tracking a collection\n" +
	"/listcollections - Show all collections you're tracking\n" +
	"/settings - Customize your alert preferences\n" +
	"/help - Show this help message\n\n" +
	"How it works:\n" +
	"1. Add collections you want to track using /addcollection\n" +
	"2. You'll receive alerts when NFTs in those collections are bought or sold\n" +
	"3. Use /settings to customize what types of alerts you receive"

func (m *Manager) startCommand(ctx context.Context, event *Event) error {
	if err := m.upsertUser(ctx, event); err != nil {
		return err
	}

	welcome := fmt.Sprintf("Hello %s! 👋\n\n"+
		"Welcome to the NFT Transaction Tracker Bot. "+
		"I can help you track NFT sales and purchases across multiple blockchains and marketplaces.\n\n"+
		"Here are the commands you can use:\n"+
		"/addcollection - Start tracking an NFT collection\n"+
		"/removecollection - Stop tracking a collection\n"+
		"/listcollections - Show your tracked collections\n"+
		"/settings - Customize your alert preferences\n"+
		"/help - Show this help message",
		event.FirstName)
	return m.messenger.SendMessage(ctx, event.UserID, welcome)
}

func (m *Manager) upsertUser(ctx context.Context, event *Event) error {
	return m.store.UpsertUser(ctx, &models.User{
		ID:        event.UserID,
		FirstName: event.FirstName,
		Username:  event.Username,
	})
}

// --- add-collection flow ---

func (m *Manager) startAddCollection(ctx context.Context, event *Event) error {
	// The collection row references the user row, so the user must
	// exist even when /addcollection is their first interaction.
	if err := m.upsertUser(ctx, event); err != nil {
		return err
	}

	session := newSession(event.UserID, FlowAddCollection, StateAwaitBlockchain)
	m.sessions.Put(session)
	m.flowStarted(FlowAddCollection)

	choices := []Choice{
		{Label: "Ethereum", Data: "blockchain:ethereum"},
		{Label: "Solana", Data: "blockchain:solana"},
		{Label: "Polygon", Data: "blockchain:polygon"},
		{Label: "Cancel", Data: "cancel"},
	}
	return m.messenger.SendChoicePrompt(ctx, event.UserID,
		"Which blockchain does the NFT collection use?", choices)
}

func (m *Manager) blockchainSelected(ctx context.Context, session *Session, event *Event) error {
	blockchain, ok := choicePayload(event, "blockchain")
	if !ok {
		return nil
	}
	if _, supported := marketplaceMenu[blockchain]; !supported {
		return nil
	}

	session.Blockchain = blockchain
	session.State = StateAwaitMarketplace
	m.sessions.Put(session)

	var choices []Choice
	for _, marketplace := range marketplaceMenu[blockchain] {
		choices = append(choices, Choice{
			Label: capitalize(marketplace),
			Data:  "marketplace:" + marketplace,
		})
	}
	choices = append(choices, Choice{Label: "Cancel", Data: "cancel"})

	text := fmt.Sprintf("Selected blockchain: %s\nWhich marketplace does the collection use?",
		notify.BlockchainDisplayName(blockchain))
	return m.messenger.SendChoicePrompt(ctx, event.UserID, text, choices)
}

func (m *Manager) marketplaceSelected(ctx context.Context, session *Session, event *Event) error {
	marketplace, ok := choicePayload(event, "marketplace")
	if !ok {
		return nil
	}
	if !menuHasMarketplace(session.Blockchain, marketplace) {
		// Payload not from the offered menu; treat like any stray press.
		return nil
	}

	if !m.resolver.Supported(session.Blockchain, marketplace) {
		m.finishSession(session, "unsupported")
		return m.messenger.SendMessage(ctx, event.UserID, fmt.Sprintf(
			"Sorry, tracking for %s on %s is not supported yet. Please try a different combination.",
			capitalize(marketplace), notify.BlockchainDisplayName(session.Blockchain)))
	}

	session.Marketplace = marketplace
	session.State = StateAwaitAddress
	m.sessions.Put(session)

	text := fmt.Sprintf("Selected blockchain: %s\nSelected marketplace: %s\n\n"+
		"Please enter the collection address or identifier:",
		notify.BlockchainDisplayName(session.Blockchain), capitalize(marketplace))
	return m.messenger.SendMessage(ctx, event.UserID, text)
}

func (m *Manager) addressEntered(ctx context.Context, session *Session, event *Event) error {
	if event.Kind != EventText {
		return nil
	}
	address := strings.TrimSpace(event.Data)

	if !validAddressFormat(session.Blockchain, address) {
		// Re-prompt; the flow stays at the address step.
		return m.messenger.SendMessage(ctx, event.UserID, fmt.Sprintf(
			"Invalid collection address format for %s. Please try again or use /cancel to cancel.",
			notify.BlockchainDisplayName(session.Blockchain)))
	}

	variant, err := m.resolver.Lookup(session.Blockchain, session.Marketplace)
	if err != nil {
		m.finishSession(session, "unsupported")
		return m.messenger.SendMessage(ctx, event.UserID, fmt.Sprintf(
			"Sorry, tracking for %s on %s is not supported yet. Please try a different combination.",
			capitalize(session.Marketplace), notify.BlockchainDisplayName(session.Blockchain)))
	}

	if err := m.messenger.SendMessage(ctx, event.UserID, "Validating collection... Please wait."); err != nil {
		return err
	}

	if !variant.ValidateCollection(ctx, address) {
		return m.messenger.SendMessage(ctx, event.UserID,
			"Could not find a valid collection at the address/symbol provided. "+
				"Please check your input and try again.")
	}

	name := ""
	if info, infoErr := variant.CollectionInfo(ctx, address); infoErr == nil && info != nil {
		name = info.Name
	}

	collection := &models.TrackedCollection{
		UserID:      session.UserID,
		Blockchain:  session.Blockchain,
		Marketplace: session.Marketplace,
		Address:     address,
		Name:        name,
	}
	display := name
	if display == "" {
		display = address
	}

	if err := m.store.AddCollection(ctx, collection); err != nil {
		if errors.Is(err, storage.ErrAlreadyTracked) {
			m.finishSession(session, "completed")
			return m.messenger.SendMessage(ctx, event.UserID, fmt.Sprintf(
				"You're already tracking %s on %s.",
				display, notify.BlockchainDisplayName(session.Blockchain)))
		}
		m.finishSession(session, "error")
		m.logger.WithField("user", session.UserID).Error("Failed to store collection: ", err)
		return m.messenger.SendMessage(ctx, event.UserID,
			"Failed to save the collection. Please try again later.")
	}

	m.finishSession(session, "completed")
	return m.messenger.SendMessage(ctx, event.UserID, fmt.Sprintf(
		"✅ Successfully added collection %s on %s (%s).\n\n"+
			"You will now receive alerts when NFTs in this collection are bought or sold.",
		display, notify.BlockchainDisplayName(session.Blockchain), capitalize(session.Marketplace)))
}

// --- remove-collection flow ---

func (m *Manager) startRemoveCollection(ctx context.Context, event *Event) error {
	if err := m.upsertUser(ctx, event); err != nil {
		return err
	}

	collections, err := m.store.ListUserCollections(ctx, event.UserID)
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		return m.messenger.SendMessage(ctx, event.UserID,
			"You're not tracking any collections yet. "+
				"Use /addcollection to start tracking an NFT collection.")
	}

	session := newSession(event.UserID, FlowRemoveCollection, StateAwaitSelection)
	session.Candidates = collections
	m.sessions.Put(session)
	m.flowStarted(FlowRemoveCollection)

	var choices []Choice
	for i, collection := range collections {
		choices = append(choices, Choice{
			Label: fmt.Sprintf("%s (%s)", collection.DisplayName(),
				notify.BlockchainDisplayName(collection.Blockchain)),
			Data: fmt.Sprintf("remove:%d", i),
		})
	}
	choices = append(choices, Choice{Label: "Cancel", Data: "cancel"})

	return m.messenger.SendChoicePrompt(ctx, event.UserID,
		"Select a collection to remove from tracking:", choices)
}

func (m *Manager) removalSelected(ctx context.Context, session *Session, event *Event) error {
	payload, ok := choicePayload(event, "remove")
	if !ok {
		return nil
	}

	index, err := strconv.Atoi(payload)
	if err != nil || index < 0 || index >= len(session.Candidates) {
		// Stale or out-of-range selection from an old prompt.
		m.finishSession(session, "error")
		return m.messenger.SendMessage(ctx, event.UserID, "Error: Collection not found.")
	}
	selected := session.Candidates[index]

	if err := m.store.RemoveCollection(ctx, session.UserID, selected.Blockchain, selected.Address); err != nil {
		m.finishSession(session, "error")
		if errors.Is(err, storage.ErrNotFound) {
			return m.messenger.SendMessage(ctx, event.UserID, "Error: Failed to remove collection.")
		}
		return err
	}

	m.finishSession(session, "completed")
	return m.messenger.SendMessage(ctx, event.UserID, fmt.Sprintf(
		"✅ Successfully removed %s on %s from tracking.",
		selected.DisplayName(), notify.BlockchainDisplayName(selected.Blockchain)))
}

// --- settings flow ---

func (m *Manager) startSettings(ctx context.Context, event *Event) error {
	if err := m.upsertUser(ctx, event); err != nil {
		return err
	}
	settings, err := m.store.GetSettings(ctx, event.UserID)
	if err != nil {
		return err
	}

	session := newSession(event.UserID, FlowSettings, StateAwaitCategory)
	session.Settings = settings
	m.sessions.Put(session)
	m.flowStarted(FlowSettings)

	choices := []Choice{
		{Label: "Alert Types", Data: "settings:alert_type"},
		{Label: "Update Frequency", Data: "settings:frequency"},
		{Label: "Cancel", Data: "cancel"},
	}
	text := fmt.Sprintf("⚙️ Settings\n\nCurrent alert type: %s\nCurrent update frequency: %s\n\n"+
		"What would you like to change?",
		alertTypeNames[settings.AlertType], frequencyNames[settings.UpdateFrequency])
	return m.messenger.SendChoicePrompt(ctx, event.UserID, text, choices)
}

func (m *Manager) settingsCategorySelected(ctx context.Context, session *Session, event *Event) error {
	category, ok := choicePayload(event, "settings")
	if !ok {
		return nil
	}

	switch category {
	case "alert_type":
		session.State = StateAwaitAlertType
		m.sessions.Put(session)
		choices := []Choice{
			{Label: "All Transactions", Data: "alert_type:all"},
			{Label: "Sales Only", Data: "alert_type:sales"},
			{Label: "Purchases Only", Data: "alert_type:purchases"},
			{Label: "Cancel", Data: "cancel"},
		}
		return m.messenger.SendChoicePrompt(ctx, event.UserID,
			"Select which types of alerts you want to receive:", choices)
	case "frequency":
		session.State = StateAwaitFrequency
		m.sessions.Put(session)
		choices := []Choice{
			{Label: "Instant Alerts", Data: "frequency:instant"},
			{Label: "Every 10 Minutes", Data: "frequency:10min"},
			{Label: "Hourly Updates", Data: "frequency:hourly"},
			{Label: "Cancel", Data: "cancel"},
		}
		return m.messenger.SendChoicePrompt(ctx, event.UserID,
			"Select how often you want to receive updates:", choices)
	default:
		return nil
	}
}

func (m *Manager) alertTypeSelected(ctx context.Context, session *Session, event *Event) error {
	payload, ok := choicePayload(event, "alert_type")
	if !ok {
		return nil
	}
	alertType := models.AlertType(payload)
	if !alertType.Valid() {
		return nil
	}

	// Read-modify-write: only the chosen field changes.
	session.Settings.AlertType = alertType
	if err := m.store.SetSettings(ctx, session.UserID, session.Settings); err != nil {
		m.finishSession(session, "error")
		return err
	}

	m.finishSession(session, "completed")
	return m.messenger.SendMessage(ctx, event.UserID,
		fmt.Sprintf("✅ Alert type updated to: %s", alertTypeNames[alertType]))
}

func (m *Manager) frequencySelected(ctx context.Context, session *Session, event *Event) error {
	payload, ok := choicePayload(event, "frequency")
	if !ok {
		return nil
	}
	frequency := models.UpdateFrequency(payload)
	if !frequency.Valid() {
		return nil
	}

	session.Settings.UpdateFrequency = frequency
	if err := m.store.SetSettings(ctx, session.UserID, session.Settings); err != nil {
		m.finishSession(session, "error")
		return err
	}

	m.finishSession(session, "completed")
	return m.messenger.SendMessage(ctx, event.UserID,
		fmt.Sprintf("✅ Update frequency updated to: %s", frequencyNames[frequency]))
}

// --- stateless commands ---

func (m *Manager) listCollections(ctx context.Context, event *Event) error {
	collections, err := m.store.ListUserCollections(ctx, event.UserID)
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		return m.messenger.SendMessage(ctx, event.UserID,
			"You're not tracking any collections yet. "+
				"Use /addcollection to start tracking an NFT collection.")
	}

	var b strings.Builder
	b.WriteString("🔍 Your tracked collections:\n\n")
	for i, collection := range collections {
		fmt.Fprintf(&b, "%d. %s\n   • Blockchain: %s\n   • Marketplace: %s\n   • Address: %s\n\n",
			i+1, collection.DisplayName(),
			notify.BlockchainDisplayName(collection.Blockchain),
			capitalize(collection.Marketplace), collection.Address)
	}
	b.WriteString("To stop tracking a collection, use /removecollection")

	return m.messenger.SendMessage(ctx, event.UserID, b.String())
}

// --- lifecycle helpers ---

func (m *Manager) cancelSession(ctx context.Context, session *Session) error {
	text := "Operation cancelled."
	if session.Flow == FlowSettings {
		text = "Settings unchanged."
	}
	m.finishSession(session, "cancelled")
	return m.messenger.SendMessage(ctx, session.UserID, text)
}

func (m *Manager) finishSession(session *Session, outcome string) {
	m.sessions.Delete(session.UserID)
	if m.metrics != nil {
		m.metrics.ConversationsCompleted.WithLabelValues(string(session.Flow), outcome).Inc()
	}
}

func (m *Manager) flowStarted(flow Flow) {
	if m.metrics != nil {
		m.metrics.ConversationsStarted.WithLabelValues(string(flow)).Inc()
	}
}

// choicePayload extracts the payload of a "prefix:payload" choice event
// belonging to the expected prefix.
func choicePayload(event *Event, prefix string) (string, bool) {
	if event.Kind != EventChoice {
		return "", false
	}
	parts := strings.SplitN(event.Data, ":", 2)
	if len(parts) != 2 || parts[0] != prefix {
		return "", false
	}
	return parts[1], true
}

func menuHasMarketplace(blockchain, marketplace string) bool {
	for _, candidate := range marketplaceMenu[blockchain] {
		if candidate == marketplace {
			return true
		}
	}
	return false
}

func validAddressFormat(blockchain, address string) bool {
	switch blockchain {
	case "ethereum", "polygon":
		return tracker.ValidEVMAddress(address)
	case "solana":
		return tracker.ValidMagicEdenIdentifier(address)
	default:
		return address != ""
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
