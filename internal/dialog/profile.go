package dialog

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math"
	"strings"

	"carevox/internal/health"
	"carevox/pkg/util"
)

var (
	errDuplicateMedication = errors.New("medication already listed")
	errMedicationMoved     = errors.New("medication list changed")
)

func (c *Controller) updateProfile(ctx context.Context) error {
	item, err := c.askRetry(ctx,
		"I can help you update your profile. What would you like to update: your name, age, medications, or emergency contact?",
		"Please tell me what you want to update. You can say: name, age, medications, or emergency contact.")
	if err != nil {
		return err
	}
	if item == "" {
		c.say(ctx, "I'm having trouble understanding. Let's try updating your profile later when voice recognition is working better.")
		return nil
	}

	lower := strings.ToLower(item)
	switch {
	case hasWord(item, "name"):
		return c.updateName(ctx)
	case hasWord(item, "age"):
		return c.updateAge(ctx)
	case strings.Contains(lower, "medication") || strings.Contains(lower, "medicine"):
		return c.updateMedications(ctx)
	case strings.Contains(lower, "emergency") || strings.Contains(lower, "contact"):
		return c.updateContact(ctx)
	}

	c.say(ctx, "I'm sorry, I didn't understand what profile information you want to update. You can update your name, age, medications, or emergency contact.")
	return nil
}

func (c *Controller) updateName(ctx context.Context) error {
	p, err := c.profile(ctx)
	if err != nil {
		return err
	}

	name, ok, err := propose(ctx, c,
		func(attempt int) (string, bool, error) {
			q := fmt.Sprintf("Your current name is %s. What would you like me to call you instead?", p.Name)
			if attempt > 0 {
				q = "Let's try again. What would you like me to call you?"
			}
			raw, err := c.askRetry(ctx, q, "I didn't catch your name. Please say your name clearly.")
			if err != nil {
				return "", false, err
			}
			if raw == "" {
				c.say(ctx, "I'm having trouble understanding your name. Let's try again later.")
				return "", false, nil
			}
			name := CleanName(raw)
			if name == "" {
				c.say(ctx, "I couldn't understand that name. Let's try again later.")
				return "", false, nil
			}
			return name, true, nil
		},
		func(name string) string {
			return fmt.Sprintf("Thank you. I'll call you %s from now on. Is that correct?", name)
		},
		"Let's leave your name as it is for now.")
	if err != nil || !ok {
		return err
	}

	_, err = c.profiles.UpdateProfile(ctx, func(p *health.Profile) error {
		p.Name = name
		return nil
	})
	c.commit(ctx, err, fmt.Sprintf("Wonderful. Your name is now saved as %s.", name))
	return nil
}

func (c *Controller) updateAge(ctx context.Context) error {
	p, err := c.profile(ctx)
	if err != nil {
		return err
	}

	age, ok, err := propose(ctx, c,
		func(attempt int) (int, bool, error) {
			q := fmt.Sprintf("Your current age is %d. What is your correct age?", p.Age)
			if attempt > 0 {
				q = "Let's try again. What is your correct age?"
			}
			raw, err := c.askRetry(ctx, q, "Please say your age as a number, like sixty-five or seventy.")
			if err != nil {
				return 0, false, err
			}
			if raw == "" {
				c.say(ctx, "I'm having trouble understanding your age. Let's try again later.")
				return 0, false, nil
			}
			v, ok := ParseNumber(raw)
			if !ok {
				c.say(ctx, "I couldn't detect a valid age in what you said.")
				return 0, false, nil
			}
			age := int(math.Round(v))
			if age < 0 || age > 120 {
				c.say(ctx, fmt.Sprintf("The age %d doesn't seem right. Please try again with your correct age.", age))
				return 0, false, nil
			}
			return age, true, nil
		},
		func(age int) string {
			return fmt.Sprintf("Thank you. I've updated your age to %d. Is that correct?", age)
		},
		"Let's leave your age as it is for now.")
	if err != nil || !ok {
		return err
	}

	_, err = c.profiles.UpdateProfile(ctx, func(p *health.Profile) error {
		p.Age = age
		return nil
	})
	c.commit(ctx, err, "Your age has been saved.")
	return nil
}

func (c *Controller) updateMedications(ctx context.Context) error {
	action, err := c.askRetry(ctx,
		"Would you like to add a new medication or remove an existing one? Please say add or remove.",
		"Please say either add or remove to tell me what you want to do with your medications.")
	if err != nil {
		return err
	}
	if action == "" {
		c.say(ctx, "I'm having trouble understanding. Let's try again later when voice recognition is working better.")
		return nil
	}

	switch {
	case hasWord(action, "add", "new"):
		return c.addMedication(ctx)
	case hasWord(action, "remove", "delete", "stop"):
		return c.removeMedication(ctx)
	}
	c.say(ctx, "I didn't catch whether you want to add or remove a medication. Let's try again later.")
	return nil
}

func (c *Controller) collectMedication(ctx context.Context, attempt int) (health.Medication, bool, error) {
	var m health.Medication

	q := "Let's add your new medication. What is the name of the medication?"
	if attempt > 0 {
		q = "Let's try again. What is the name of your medication?"
	}
	name, err := c.askRetry(ctx, q, "I need the name of your medication. Please say the name clearly.")
	if err != nil {
		return m, false, err
	}
	if name == "" {
		c.say(ctx, "I'm still having trouble understanding. Let's try again later.")
		return m, false, nil
	}
	m.Name = strings.TrimSpace(name)

	dosage, err := c.ask(ctx, fmt.Sprintf("What is the dosage of %s? For example, 10 milligrams or 500 milligrams.", m.Name))
	if err != nil {
		return m, false, err
	}
	if dosage == "" {
		dosage = "Unknown dosage"
		c.say(ctx, "I couldn't understand the dosage. I'll mark it as unknown for now.")
	}
	m.Dosage = dosage

	frequency, err := c.ask(ctx, "How often do you take it? For example, once daily, twice daily, or as needed.")
	if err != nil {
		return m, false, err
	}
	if frequency == "" {
		frequency = "daily"
		c.say(ctx, "I'll set the frequency as daily.")
	}
	m.Frequency = frequency

	when, err := c.ask(ctx, "When do you take this medication? Morning, afternoon, evening, or bedtime?")
	if err != nil {
		return m, false, err
	}
	switch times := ParseTimes(when); {
	case when == "":
		m.Times = []string{"08:00"}
		c.say(ctx, "I'll set the default time as morning, 8 AM.")
	case times == nil:
		m.Times = []string{"08:00"}
		c.say(ctx, "I couldn't understand the time. I'll set it for morning, 8 AM.")
	default:
		m.Times = times
	}

	return m, true, nil
}

func sameMedication(a, b health.Medication) bool {
	return strings.EqualFold(a.Name, b.Name) &&
		strings.EqualFold(a.Dosage, b.Dosage) &&
		strings.EqualFold(a.Frequency, b.Frequency) &&
		util.EqualSlices(a.Times, b.Times, func(x, y string) bool { return x == y }, true)
}

func (c *Controller) addMedication(ctx context.Context) error {
	med, ok, err := propose(ctx, c,
		func(attempt int) (health.Medication, bool, error) {
			return c.collectMedication(ctx, attempt)
		},
		func(m health.Medication) string {
			parts := make([]string, 0, len(m.Times))
			for _, t := range m.Times {
				parts = append(parts, PartOfDay(t))
			}
			return fmt.Sprintf("Let me confirm: You take %s, %s, %s, in the %s. Is that correct?",
				m.Name, m.Dosage, m.Frequency, strings.Join(parts, ", "))
		},
		"Let's try again another time to make sure we get your medication details correct.")
	if err != nil || !ok {
		return err
	}

	updated, err := c.profiles.UpdateProfile(ctx, func(p *health.Profile) error {
		for _, m := range p.Medications {
			if sameMedication(m, med) {
				return errDuplicateMedication
			}
		}
		p.Medications = append(p.Medications, med)
		return nil
	})
	if errors.Is(err, errDuplicateMedication) {
		c.say(ctx, fmt.Sprintf("You already have %s, %s in your medication list, so I didn't add it again.", med.Name, med.Dosage))
		return nil
	}
	if c.commit(ctx, err, fmt.Sprintf("I've added %s to your medications. I'll remind you to take it %s.", med.Name, med.Frequency)) {
		c.medicationsChanged(updated)
	}
	return nil
}

// matchMedication picks the medication an answer refers to: a 1-based list
// number first, then the first name contained in the answer. It returns -1
// when nothing matches.
func matchMedication(meds []health.Medication, answer string) int {
	if v, ok := ParseNumber(answer); ok && v == math.Trunc(v) {
		if i := int(v) - 1; i >= 0 && i < len(meds) {
			return i
		}
	}
	lower := strings.ToLower(answer)
	for i, m := range meds {
		if m.Name != "" && strings.Contains(lower, strings.ToLower(m.Name)) {
			return i
		}
	}
	return -1
}

func (c *Controller) removeMedication(ctx context.Context) error {
	p, err := c.profile(ctx)
	if err != nil {
		return err
	}
	if len(p.Medications) == 0 {
		c.say(ctx, "You don't have any medications in your profile.")
		return nil
	}

	lines := []string{"Here are your current medications:"}
	for i, m := range p.Medications {
		lines = append(lines, fmt.Sprintf("Number %d: %s, %s, %s", i+1, m.Name, m.Dosage, m.Frequency))
	}
	c.sayAll(ctx, lines...)

	answer, err := c.ask(ctx, "Which medication would you like to remove? Please say the number or name.")
	if err != nil {
		return err
	}
	if answer == "" {
		c.say(ctx, "I couldn't understand which medication to remove. Let's try again later.")
		return nil
	}

	idx := matchMedication(p.Medications, answer)
	if idx < 0 {
		c.say(ctx, "I couldn't find that medication in your list. Let's try again later.")
		return nil
	}
	target := p.Medications[idx]

	updated, err := c.profiles.UpdateProfile(ctx, func(p *health.Profile) error {
		if idx >= len(p.Medications) || !sameMedication(p.Medications[idx], target) {
			return errMedicationMoved
		}
		p.Medications = append(p.Medications[:idx:idx], p.Medications[idx+1:]...)
		return nil
	})
	if errors.Is(err, errMedicationMoved) {
		log.Warn("Medication list changed during removal", "medication", target.Name)
		c.say(ctx, "Your medication list changed while we were talking. Let's try again.")
		return nil
	}
	if c.commit(ctx, err, fmt.Sprintf("I've removed %s from your medications. Is there anything else you want to update?", target.Name)) {
		c.medicationsChanged(updated)
	}
	return nil
}

func (c *Controller) medicationsChanged(p *health.Profile) {
	if c.medsHook != nil && p != nil {
		c.medsHook(p)
	}
}

func (c *Controller) updateContact(ctx context.Context) error {
	c.say(ctx, "Let's update your emergency contact information. This is important for your safety.")

	name, ok, err := propose(ctx, c,
		func(attempt int) (string, bool, error) {
			q := "Please tell me the name of your emergency contact. This might be a family member or friend."
			if attempt > 0 {
				q = "Let's try again. Who is your emergency contact?"
			}
			name, err := c.ask(ctx, q)
			if err != nil {
				return "", false, err
			}
			if name == "" {
				c.say(ctx, "I need a name for your emergency contact. Let's try again later.")
				return "", false, nil
			}
			return name, true, nil
		},
		func(name string) string {
			return fmt.Sprintf("I understood the name as %s. Is that correct? Please say yes or no.", name)
		},
		"Let's try setting up your emergency contact again later.")
	if err != nil || !ok {
		return err
	}

	c.say(ctx, "Now, please say the phone number digit by digit. For example, say: three one zero, five five five, one two three four.")
	digits, ok, err := propose(ctx, c,
		func(attempt int) (string, bool, error) {
			q := "Go ahead and say the phone number now."
			if attempt > 0 {
				q = "Let's try again. Please say the phone number digit by digit."
			}
			raw, err := c.ask(ctx, q)
			if err != nil {
				return "", false, err
			}
			if raw == "" {
				c.say(ctx, "I couldn't understand the phone number. Let's try again later.")
				return "", false, nil
			}
			d := ExtractDigits(raw)
			if len(d) < 10 {
				c.say(ctx, "I couldn't recognize a valid phone number. We need at least 10 digits. Let's try again later.")
				return "", false, nil
			}
			return d, true, nil
		},
		func(d string) string {
			return fmt.Sprintf("I understood the phone number as %s. Is that correct?", SpellPhone(d))
		},
		"Let's try setting up your emergency contact again later.")
	if err != nil || !ok {
		return err
	}

	phone := FormatPhone(digits)
	_, err = c.profiles.UpdateProfile(ctx, func(p *health.Profile) error {
		p.EmergencyContact = health.Contact{Name: name, Phone: phone}
		return nil
	})
	c.commit(ctx, err, fmt.Sprintf("Thank you. I've updated your emergency contact to %s with phone number %s.", name, phone))
	return nil
}
