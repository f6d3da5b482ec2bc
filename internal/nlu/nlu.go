package nlu

import "strings"

type Command string

const (
	None             Command = ""
	RecordGlucose    Command = "record glucose"
	RecordSleep      Command = "record sleep"
	RecordMedication Command = "record medication"
	HealthData       Command = "health data"
	Emergency        Command = "emergency"
	UpdateProfile    Command = "update profile"
	ListMedications  Command = "list medications"
	AdjustVoice      Command = "adjust voice"
	Help             Command = "help"
	Exit             Command = "exit"
)

// Rule binds a command to its trigger phrases.
type Rule struct {
	Command Command
	Phrases []string
}

// DefaultCommands is the command table. Order matters: on substring matches
// the earliest rule wins.
var DefaultCommands = []Rule{
	{RecordGlucose, []string{"record glucose", "blood sugar", "glucose reading", "sugar level"}},
	{RecordSleep, []string{"record sleep", "how i slept", "sleep hours", "hours of sleep"}},
	{RecordMedication, []string{"record medication", "took my pills", "medication taken", "medicines"}},
	{HealthData, []string{"how am i doing", "my health data", "health report", "progress"}},
	{Emergency, []string{"emergency", "help me", "need help", "call for help", "urgent"}},
	{UpdateProfile, []string{"update profile", "change my information", "update my details", "my profile"}},
	{ListMedications, []string{"list medication", "my medication", "what medications", "show medicines"}},
	{AdjustVoice, []string{"adjust voice", "change voice", "voice settings", "speak slower", "speak faster"}},
	{Help, []string{"help", "what can you do", "commands", "options", "features"}},
	{Exit, []string{"exit", "quit", "goodbye", "bye", "stop listening", "shut down"}},
}

func Normalize(utterance string) string {
	return strings.ToLower(strings.TrimSpace(utterance))
}

// Classify maps an utterance to a command. An exact phrase match wins over
// everything; otherwise the first rule with a phrase contained in the
// utterance wins. Returns None when nothing matches.
func Classify(rules []Rule, utterance string) Command {
	in := Normalize(utterance)
	if in == "" {
		return None
	}

	for _, r := range rules {
		for _, p := range r.Phrases {
			if in == p {
				return r.Command
			}
		}
	}

	for _, r := range rules {
		for _, p := range r.Phrases {
			if strings.Contains(in, p) {
				return r.Command
			}
		}
	}

	return None
}

// Commands lists the command names in table order.
func Commands(rules []Rule) []Command {
	out := make([]Command, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Command)
	}
	return out
}
