// Command demo wires the crime-domain planning scenario from spec.md §8
// end to end through AgentPlatform: register the agent, create a process,
// drive it to completion, and print the plan and final state.
package main

import (
	"context"
	"fmt"

	"github.com/kaelion/agentkit/agent"
	"github.com/kaelion/agentkit/blackboard"
	"github.com/kaelion/agentkit/goap"
	"github.com/kaelion/agentkit/hooks"
	"github.com/kaelion/agentkit/llm"
	"github.com/kaelion/agentkit/platform"
	"github.com/kaelion/agentkit/process"
	"github.com/kaelion/agentkit/rag"
)

// crimeDomain returns the agent definition for spec.md §8's scenario 1:
// cook and sell drugs to afford a gun and a bribe, then shoot an enemy and
// get away with it.
func crimeDomain() *agent.Definition {
	return &agent.Definition{
		Name:        "outlaw",
		Description: "gets away with murder",
		Actions: []agent.ActionSpec{
			{
				Name:    "Cook drugs",
				Effects: map[string]bool{"hasDrugs": true, "legalPeril": true},
				Cost:    1.2,
			},
			{
				Name:          "Sell drugs",
				Preconditions: map[string]bool{"hasDrugs": true},
				Effects:       map[string]bool{"hasDrugs": false, "hasMoney": true, "legalPeril": true},
				Cost:          1.2,
			},
			{
				Name:          "Buy gun",
				Preconditions: map[string]bool{"hasMoney": true},
				Effects:       map[string]bool{"hasGun": true, "hasMoney": false},
				Cost:          1.0,
			},
			{
				Name:          "Bribe cop",
				Preconditions: map[string]bool{"hasMoney": true},
				Effects:       map[string]bool{"legalPeril": false, "hasMoney": false},
				Cost:          2.0,
			},
			{
				Name:          "Shoot enemy",
				Preconditions: map[string]bool{"hasGun": true},
				Effects:       map[string]bool{"enemyDead": true, "legalPeril": true},
				Cost:          1.0,
			},
		},
		Goals: []agent.GoalSpec{
			{
				Name:          "getAwayWithMurder",
				Preconditions: map[string]bool{"enemyDead": true, "legalPeril": false},
				Value:         10,
			},
		},
	}
}

// applyEffectsExecutor is a process.ActionExecutor that simulates running
// an action in the world by writing its static effects onto the
// blackboard as condition overrides, the same pattern process's own tests
// use for a domain with no real side effects to perform.
func applyEffectsExecutor() process.ActionExecutor {
	return process.ActionExecutorFunc(func(_ context.Context, bb *blackboard.Blackboard, action goap.Action, _ []string) error {
		fmt.Printf("executing action: %s\n", action.Name)
		for k, v := range action.Effects {
			bb.SetCondition(k, v == goap.True)
		}
		return nil
	})
}

// printingListener logs the events a run of this demo cares about.
type printingListener struct{}

func (printingListener) HandleEvent(_ context.Context, event hooks.Event) error {
	switch e := event.(type) {
	case *hooks.PlanFormulatedEvent:
		fmt.Printf("plan formulated for goal %q: %v (cost=%.1f, netValue=%.1f)\n", e.GoalName, e.ActionNames, e.Cost, e.NetValue)
	case *hooks.GoalAchievedEvent:
		fmt.Printf("goal achieved: %s\n", e.GoalName)
	case *hooks.AgentDeploymentEvent:
		fmt.Printf("agent deployed: %s\n", e.AgentName)
	}
	return nil
}

func main() {
	ctx := context.Background()

	ap := platform.New(platform.Options{})
	if _, err := ap.Bus().Register(printingListener{}); err != nil {
		panic(err)
	}

	if err := ap.RegisterAgent(crimeDomain()); err != nil {
		panic(err)
	}

	factory := func(*llm.Facade, *rag.Pipeline) process.ActionExecutor {
		return applyEffectsExecutor()
	}
	p, err := ap.CreateAgentProcess(ctx, "outlaw", nil, agent.ProcessOptions{Test: true}, factory)
	if err != nil {
		panic(err)
	}

	if err := ap.RunProcess(ctx, p); err != nil {
		panic(err)
	}

	fmt.Println("final status:", p.Status())
	fmt.Println("history:")
	for _, h := range p.History() {
		fmt.Printf("  %s (err=%v)\n", h.ActionName, h.Err)
	}
}
