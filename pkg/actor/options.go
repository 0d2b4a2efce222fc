package actor

// MainPlot is the secret plot outline known only to the game master.
type MainPlot struct {
	Synopsis      string   `json:"synopsis"`
	KeyMilestones []string `json:"key_milestones,omitempty"`
	FinalBoss     string   `json:"final_boss,omitempty"`
}

// WorldOption is one of the setting choices presented at the start of a
// session. MainPlot is never shown to players; MainPlotHook is.
type WorldOption struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	MainPlotHook    string   `json:"main_plot_hook"`
	MainPlot        MainPlot `json:"main_plot"`
	InitialBestiary []Entity `json:"initial_bestiary,omitempty"`
}

// ClassOption is one of the character classes offered during setup.
type ClassOption struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	PositiveAttribute string   `json:"positive_attribute,omitempty"`
	StartingWeapon    string   `json:"starting_weapon"`
	StartingObject    string   `json:"starting_object"`
	StartingCurrency  int      `json:"starting_currency"`
	BaseStats         Stats    `json:"base_stats"`
	InitialAbilities  []string `json:"initial_abilities,omitempty"`
}
