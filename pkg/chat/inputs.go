package chat

import (
	"context"

	"github.com/go-go-golems/agentpilot/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func (c *Context) loadInputs(ctx context.Context) error {
	inputs, err := c.store.ListMemberInputs(ctx, c.ContextID())
	if err != nil {
		return errors.Wrap(err, "could not list member inputs")
	}
	c.inputs = inputs
	return nil
}

// Inputs returns the input graph of the conversation.
func (c *Context) Inputs() []*store.MemberInput {
	return c.inputs
}

// SetInput makes inputID an input of memberID. inputID is store.UserInput for the user.
func (c *Context) SetInput(ctx context.Context, memberID int64, inputID int64, typ store.InputType) error {
	if _, err := c.Member(memberID); err != nil {
		return err
	}
	if inputID != store.UserInput {
		if _, err := c.Member(inputID); err != nil {
			return err
		}
	}
	if err := c.store.SetMemberInput(ctx, &store.MemberInput{MemberID: memberID, InputMemberID: inputID, Type: typ}); err != nil {
		return err
	}
	return c.loadInputs(ctx)
}

func (c *Context) RemoveInput(ctx context.Context, memberID int64, inputID int64) error {
	if err := c.store.RemoveMemberInput(ctx, memberID, inputID); err != nil {
		return err
	}
	return c.loadInputs(ctx)
}

// RemoveMember detaches a member. Its messages stay in the history.
func (c *Context) RemoveMember(ctx context.Context, memberID int64) error {
	if _, err := c.Member(memberID); err != nil {
		return err
	}
	if err := c.store.RemoveMember(ctx, memberID); err != nil {
		return err
	}
	members := c.members[:0]
	for _, m := range c.members {
		if m.ID != memberID {
			members = append(members, m)
		}
	}
	c.members = members
	return c.loadInputs(ctx)
}

// responseOrder puts every member after its inputs, keeping position order
// where the graph allows it. Members on a cycle follow in position order.
func responseOrder(members []*Member, inputs []*store.MemberInput) []*Member {
	index := map[int64]int{}
	for i, m := range members {
		index[m.ID] = i
	}
	pending := make([]int, len(members))
	dependents := map[int64][]int64{}
	for _, in := range inputs {
		if _, ok := index[in.MemberID]; !ok {
			continue
		}
		if _, ok := index[in.InputMemberID]; !ok {
			continue
		}
		pending[index[in.MemberID]]++
		dependents[in.InputMemberID] = append(dependents[in.InputMemberID], in.MemberID)
	}

	ret := make([]*Member, 0, len(members))
	done := make([]bool, len(members))
	for len(ret) < len(members) {
		next := -1
		for i := range members {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			log.Warn().Int("members", len(members)-len(ret)).Msg("member inputs form a cycle, using position order")
			for i, m := range members {
				if !done[i] {
					ret = append(ret, m)
				}
			}
			break
		}
		done[next] = true
		ret = append(ret, members[next])
		for _, id := range dependents[members[next].ID] {
			pending[index[id]]--
		}
	}
	return ret
}

// triggered tells whether a member responds in this cycle. A member without
// message inputs answers the user, the others wait for one of their message inputs.
func triggered(memberID int64, inputs []*store.MemberInput, fired map[int64]bool) bool {
	hasMessageInput := false
	for _, in := range inputs {
		if in.MemberID != memberID || in.Type != store.InputMessage {
			continue
		}
		hasMessageInput = true
		if fired[in.InputMemberID] {
			return true
		}
	}
	return !hasMessageInput
}
